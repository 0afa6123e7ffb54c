package communicate

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/wizardpipe/wizard/internal/common/wire"
	"github.com/wizardpipe/wizard/internal/hooks"
	"github.com/wizardpipe/wizard/internal/wizard/assets"
	"github.com/wizardpipe/wizard/internal/wizard/session"
)

// Server answers plugin requests over loopback TCP. One instance per
// launched DCC, allocated at launch and closed when the child is reaped;
// each child only ever learns its own port.
type Server struct {
	sess     *session.Session
	timeout  time.Duration
	listener net.Listener
	wg       sync.WaitGroup
}

// NewServer binds the loopback listener on an ephemeral port.
func NewServer(sess *session.Session, timeout time.Duration) (*Server, error) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	return &Server{sess: sess, timeout: timeout, listener: l}, nil
}

// Port returns the bound port, advertised to the child through EnvPort.
func (s *Server) Port() int {
	return s.listener.Addr().(*net.TCPAddr).Port
}

// Serve accepts plugin connections until the context ends.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.listener.Close()
	}()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				s.wg.Wait()
				return nil
			}
			return err
		}
		s.wg.Add(1)
		go s.handleConn(ctx, conn)
	}
}

// Close stops the listener.
func (s *Server) Close() {
	s.listener.Close()
	s.wg.Wait()
}

// handleConn answers framed requests on one connection until the plugin
// hangs up. Each request gets its own deadline.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()
	for {
		payload, err := wire.ReadFrame(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				log.Ctx(ctx).Debug().Err(err).Msg("communicate read failed")
			}
			return
		}
		var req Request
		if err := wire.Decode(payload, &req); err != nil {
			s.reply(conn, errorResponse("undecodable request: "+err.Error()))
			continue
		}
		reqCtx, cancel := context.WithTimeout(ctx, s.timeout)
		resp := s.dispatch(reqCtx, req)
		cancel()
		if !s.reply(conn, resp) {
			return
		}
	}
}

func (s *Server) reply(conn net.Conn, resp Response) bool {
	payload, err := wire.Encode(resp)
	if err != nil {
		return false
	}
	conn.SetWriteDeadline(time.Now().Add(s.timeout))
	return wire.WriteFrame(conn, payload) == nil
}

// dispatch is the exhaustive request switch. Adding a request type and
// forgetting it here answers an explicit error to the plugin rather
// than silence.
func (s *Server) dispatch(ctx context.Context, req Request) Response {
	switch req.Type {
	case ReqAddVersion:
		return s.addVersion(ctx, req)
	case ReqAddExportVersion:
		return s.addExportVersion(ctx, req)
	case ReqGetReferences:
		return s.getReferences(ctx, req)
	case ReqGetStringVariant:
		return s.getStringVariant(ctx, req)
	case ReqExportDir:
		return s.exportDir(ctx, req)
	case ReqScreenOver:
		return s.screenOver(ctx, req)
	case ReqAfterSaveHooks:
		return s.runHooks(ctx, req, hooks.EntryAfterSave)
	case ReqAfterExportHooks:
		return s.runHooks(ctx, req, hooks.EntryAfterExport)
	case ReqAfterOpenHooks:
		return s.runHooks(ctx, req, hooks.EntryAfterOpen)
	case ReqAfterReferenceHooks:
		return s.runHooks(ctx, req, hooks.EntryAfterReference)
	default:
		return errorResponse("unknown request type: " + req.Type)
	}
}

func (s *Server) addVersion(ctx context.Context, req Request) Response {
	v, err := assets.AddWorkVersion(ctx, s.sess, req.WorkEnvID, req.Comment, req.FromLast)
	if err != nil {
		return errorResponse(err.Error())
	}
	if tc, cerr := assets.ResolveWorkEnvContext(ctx, s.sess, req.WorkEnvID); cerr == nil {
		if software, serr := s.sess.Store.GetSoftware(ctx, tc.WorkEnv.SoftwareID); serr == nil {
			hooks.Run(ctx, s.sess, software.Name, hooks.EntryAfterCreation, hooks.Context{
				StringVariant: tc.String(),
				Stage:         tc.Stage.Name,
			})
		}
	}
	return okResponse(VersionReply{
		VersionID: v.ID,
		Name:      v.Name,
		FilePath:  assets.AbsPath(s.sess, v.FilePath),
	})
}

func (s *Server) addExportVersion(ctx context.Context, req Request) Response {
	v, err := assets.AddExportVersion(ctx, s.sess, req.VariantID, req.ExportName,
		req.Files, req.WorkVersionID, req.Comment)
	if err != nil {
		return errorResponse(err.Error())
	}
	return okResponse(ExportReply{
		ExportVersionID: v.ID,
		Name:            v.Name,
		Path:            assets.AbsPath(s.sess, v.Path),
	})
}

func (s *Server) getReferences(ctx context.Context, req Request) Response {
	resolved, err := assets.ResolveReferences(ctx, s.sess, req.WorkEnvID)
	if err != nil {
		return errorResponse(err.Error())
	}
	out := make([]ReferenceReply, 0, len(resolved))
	for _, r := range resolved {
		reply := ReferenceReply{
			Namespace:  r.Namespace,
			ExportName: r.Export.Name,
			AutoUpdate: r.AutoUpdate,
			Group:      r.GroupName,
		}
		if r.Version != nil {
			reply.Version = r.Version.Name
			reply.Directory = assets.AbsPath(s.sess, r.Version.Path)
			reply.Files = r.Files
		}
		out = append(out, reply)
	}
	return okResponse(out)
}

func (s *Server) getStringVariant(ctx context.Context, req Request) Response {
	tc, err := assets.ResolveWorkEnvContext(ctx, s.sess, req.WorkEnvID)
	if err != nil {
		return errorResponse(err.Error())
	}
	return okResponse(StringVariantReply{
		StringVariant: tc.String(),
		Stage:         tc.Stage.Name,
	})
}

func (s *Server) exportDir(ctx context.Context, req Request) Response {
	export, err := assets.GetOrCreateExport(ctx, s.sess, req.VariantID, req.ExportName)
	if err != nil {
		return errorResponse(err.Error())
	}
	return okResponse(ExportDirReply{Directory: assets.AbsPath(s.sess, export.Path)})
}

func (s *Server) screenOver(ctx context.Context, req Request) Response {
	if err := assets.ScreenOverVersion(ctx, s.sess, req.VersionID,
		req.ScreenshotPath, req.ThumbnailPath); err != nil {
		return errorResponse(err.Error())
	}
	return okResponse(struct{}{})
}

func (s *Server) runHooks(ctx context.Context, req Request, entry string) Response {
	tc, err := assets.ResolveWorkEnvContext(ctx, s.sess, req.WorkEnvID)
	if err != nil {
		return errorResponse(err.Error())
	}
	software, err := s.sess.Store.GetSoftware(ctx, tc.WorkEnv.SoftwareID)
	if err != nil {
		return errorResponse(err.Error())
	}
	failed := hooks.Run(ctx, s.sess, software.Name, entry, hooks.Context{
		StringVariant: tc.String(),
		Stage:         tc.Stage.Name,
	})
	return okResponse(HooksReply{Failed: failed})
}

func okResponse(data any) Response {
	raw, err := json.Marshal(data)
	if err != nil {
		return errorResponse("failed to encode response: " + err.Error())
	}
	return Response{Status: statusOK, Data: raw}
}

func errorResponse(msg string) Response {
	return Response{Status: statusError, Error: msg}
}
