// Package softwares manages the per-project DCC catalog: executable
// paths, launch command templates, environment additions and default
// save extensions. Presets are JSON documents validated against a
// schema before anything touches the database.
package softwares

import (
	"context"
	"net/http"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/wizardpipe/wizard/internal/common/apperrors"
	"github.com/wizardpipe/wizard/internal/wizard/db/models"
	"github.com/wizardpipe/wizard/internal/wizard/session"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	ErrSoftwares apperrors.Error = apperrors.New("softwares error").SetStatusCode(http.StatusInternalServerError)
	ErrPreset    apperrors.Error = ErrSoftwares.New("invalid software preset").SetStatusCode(http.StatusBadRequest)
)

// FileToken is the slot in a launch command template replaced by the
// scene file path.
const FileToken = "%file%"

const presetSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["softwares"],
	"properties": {
		"softwares": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["name", "path", "file_command"],
				"properties": {
					"name": {"type": "string", "minLength": 1},
					"path": {"type": "string", "minLength": 1},
					"file_command": {"type": "string", "minLength": 1},
					"no_file_command": {"type": "string"},
					"additionnal_env": {"type": "object", "additionalProperties": {"type": "string"}},
					"additionnal_scripts": {"type": "array", "items": {"type": "string"}},
					"extensions": {"type": "object", "additionalProperties": {"type": "string"}}
				}
			}
		}
	}
}`

var compiledPresetSchema = jsonschema.MustCompileString("softwares-preset.json", presetSchema)

type presetSoftware struct {
	Name               string            `json:"name"`
	Path               string            `json:"path"`
	FileCommand        string            `json:"file_command"`
	NoFileCommand      string            `json:"no_file_command"`
	AdditionnalEnv     map[string]string `json:"additionnal_env"`
	AdditionnalScripts []string          `json:"additionnal_scripts"`
	Extensions         map[string]string `json:"extensions"` // stage name -> extension
}

type preset struct {
	Softwares []presetSoftware `json:"softwares"`
}

// ImportPreset validates a preset document and registers every software
// it declares, including the stage extension defaults. Existing
// softwares of the same name are updated in place.
func ImportPreset(ctx context.Context, sess *session.Session, document []byte) ([]*models.Software, apperrors.Error) {
	if err := sess.RequireProject(); err != nil {
		return nil, err
	}
	var raw any
	if err := json.Unmarshal(document, &raw); err != nil {
		return nil, ErrPreset.Msg("preset is not valid JSON").Err(err)
	}
	if err := compiledPresetSchema.Validate(raw); err != nil {
		return nil, ErrPreset.Err(err)
	}
	var p preset
	if err := json.Unmarshal(document, &p); err != nil {
		return nil, ErrPreset.Err(err)
	}

	var out []*models.Software
	for _, ps := range p.Softwares {
		env, _ := json.MarshalToString(orMap(ps.AdditionnalEnv))
		scripts, _ := json.MarshalToString(orList(ps.AdditionnalScripts))
		sw := models.Software{
			Name:               ps.Name,
			Path:               ps.Path,
			AdditionnalEnv:     env,
			AdditionnalScripts: scripts,
			FileCommand:        ps.FileCommand,
			NoFileCommand:      ps.NoFileCommand,
		}
		existing, gerr := sess.Store.GetSoftwareByName(ctx, ps.Name)
		if gerr == nil {
			sw.ID = existing.ID
			if err := sess.Store.UpdateSoftware(ctx, existing.ID, map[string]any{
				"path":                sw.Path,
				"additionnal_env":     sw.AdditionnalEnv,
				"additionnal_scripts": sw.AdditionnalScripts,
				"file_command":        sw.FileCommand,
				"no_file_command":     sw.NoFileCommand,
			}); err != nil {
				return nil, err
			}
		} else if _, err := sess.Store.CreateSoftware(ctx, &sw); err != nil {
			return nil, err
		}
		for stage, ext := range ps.Extensions {
			if err := sess.Store.SetExtension(ctx, stage, sw.ID, ext); err != nil {
				return nil, err
			}
		}
		out = append(out, &sw)
	}
	return out, nil
}

// BuildCommand renders a launch command template into an argv. With a
// file the file_command template is used and the token replaced; without
// one the no_file_command runs, falling back to the bare executable.
// Quoted segments keep their spaces.
func BuildCommand(sw *models.Software, filePath string) []string {
	tpl := sw.NoFileCommand
	if filePath != "" {
		tpl = sw.FileCommand
	}
	if tpl == "" {
		return []string{sw.Path}
	}
	rendered := strings.ReplaceAll(tpl, FileToken, filePath)
	argv := splitCommand(rendered)
	if len(argv) == 0 {
		return []string{sw.Path}
	}
	return argv
}

// splitCommand splits on spaces outside double quotes.
func splitCommand(s string) []string {
	var out []string
	var cur strings.Builder
	quoted := false
	for _, r := range s {
		switch {
		case r == '"':
			quoted = !quoted
		case r == ' ' && !quoted:
			if cur.Len() > 0 {
				out = append(out, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteRune(r)
		}
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}

func orMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func orList(l []string) []string {
	if l == nil {
		return []string{}
	}
	return l
}
