package communicate

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/wizardpipe/wizard/internal/common/wire"
)

// Client is the plugin side of the channel. Requests are serialized on
// one connection; the protocol is strictly request then response.
type Client struct {
	mu      sync.Mutex
	conn    net.Conn
	timeout time.Duration
}

// Dial connects to the daemon on the given loopback port.
func Dial(port int, timeout time.Duration) (*Client, error) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	conn, err := net.DialTimeout("tcp", "127.0.0.1:"+strconv.Itoa(port), timeout)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn, timeout: timeout}, nil
}

// DialFromEnv connects using the port the daemon injected at launch.
func DialFromEnv(timeout time.Duration) (*Client, error) {
	port, err := strconv.Atoi(os.Getenv(EnvPort))
	if err != nil {
		return nil, errors.New(EnvPort + " is not set")
	}
	return Dial(port, timeout)
}

// Close hangs up.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Do sends one request and decodes the answer payload into out, which
// may be nil for requests without a meaningful reply.
func (c *Client) Do(req Request, out any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	payload, err := wire.Encode(req)
	if err != nil {
		return err
	}
	c.conn.SetDeadline(time.Now().Add(c.timeout))
	if err := wire.WriteFrame(c.conn, payload); err != nil {
		return err
	}
	raw, err := wire.ReadFrame(c.conn)
	if err != nil {
		return err
	}
	var resp Response
	if err := wire.Decode(raw, &resp); err != nil {
		return err
	}
	if resp.Status != statusOK {
		return fmt.Errorf("daemon refused %s: %s", req.Type, resp.Error)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(resp.Data, out)
}

// AddVersion registers the next work version and returns where to save.
func (c *Client) AddVersion(workEnvID int64, comment string, fromLast bool) (*VersionReply, error) {
	var reply VersionReply
	err := c.Do(Request{
		Type:      ReqAddVersion,
		WorkEnvID: workEnvID,
		Comment:   comment,
		FromLast:  fromLast,
	}, &reply)
	if err != nil {
		return nil, err
	}
	return &reply, nil
}

// AddExportVersion publishes files as a new export version.
func (c *Client) AddExportVersion(variantID int64, exportName string, files []string, workVersionID int64, comment string) (*ExportReply, error) {
	var reply ExportReply
	err := c.Do(Request{
		Type:          ReqAddExportVersion,
		VariantID:     variantID,
		ExportName:    exportName,
		Files:         files,
		WorkVersionID: workVersionID,
		Comment:       comment,
	}, &reply)
	if err != nil {
		return nil, err
	}
	return &reply, nil
}

// GetReferences resolves the references of a work environment.
func (c *Client) GetReferences(workEnvID int64) ([]ReferenceReply, error) {
	var reply []ReferenceReply
	if err := c.Do(Request{Type: ReqGetReferences, WorkEnvID: workEnvID}, &reply); err != nil {
		return nil, err
	}
	return reply, nil
}

// GetStringVariant resolves the human form of a work environment.
func (c *Client) GetStringVariant(workEnvID int64) (*StringVariantReply, error) {
	var reply StringVariantReply
	if err := c.Do(Request{Type: ReqGetStringVariant, WorkEnvID: workEnvID}, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

// RequestExportDir returns (creating if needed) an export directory.
func (c *Client) RequestExportDir(variantID int64, exportName string) (string, error) {
	var reply ExportDirReply
	if err := c.Do(Request{Type: ReqExportDir, VariantID: variantID, ExportName: exportName}, &reply); err != nil {
		return "", err
	}
	return reply.Directory, nil
}

// ScreenOverVersion attaches a capture to a work version.
func (c *Client) ScreenOverVersion(versionID int64, screenshotPath, thumbnailPath string) error {
	return c.Do(Request{
		Type:           ReqScreenOver,
		VersionID:      versionID,
		ScreenshotPath: screenshotPath,
		ThumbnailPath:  thumbnailPath,
	}, nil)
}

// RunAfterSaveHooks triggers the after-save hook chain.
func (c *Client) RunAfterSaveHooks(workEnvID int64) ([]string, error) {
	var reply HooksReply
	if err := c.Do(Request{Type: ReqAfterSaveHooks, WorkEnvID: workEnvID}, &reply); err != nil {
		return nil, err
	}
	return reply.Failed, nil
}

// RunAfterExportHooks triggers the after-export hook chain.
func (c *Client) RunAfterExportHooks(workEnvID int64) ([]string, error) {
	var reply HooksReply
	if err := c.Do(Request{Type: ReqAfterExportHooks, WorkEnvID: workEnvID}, &reply); err != nil {
		return nil, err
	}
	return reply.Failed, nil
}

// RunAfterReferenceHooks triggers the after-reference hook chain, to be
// called once the plugin has wired the resolved references into the
// scene.
func (c *Client) RunAfterReferenceHooks(workEnvID int64) ([]string, error) {
	var reply HooksReply
	if err := c.Do(Request{Type: ReqAfterReferenceHooks, WorkEnvID: workEnvID}, &reply); err != nil {
		return nil, err
	}
	return reply.Failed, nil
}

// RunAfterOpenHooks triggers the after-scene-opening hook chain.
func (c *Client) RunAfterOpenHooks(workEnvID int64) ([]string, error) {
	var reply HooksReply
	if err := c.Do(Request{Type: ReqAfterOpenHooks, WorkEnvID: workEnvID}, &reply); err != nil {
		return nil, err
	}
	return reply.Failed, nil
}
