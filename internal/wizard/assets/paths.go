package assets

import (
	"context"
	"path"
	"regexp"
	"strings"
	"unicode"

	"github.com/tidwall/gjson"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/wizardpipe/wizard/internal/common/apperrors"
	"github.com/wizardpipe/wizard/internal/wizard/session"
)

// Directory names of the on-disk layout.
const (
	WorkDirName    = "_WORK"
	ExportsDirName = "_EXPORTS"
	ArchivesDir    = "archives"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// Slugify lowers a name and strips diacritics so "Héro Ville" becomes
// "hero_ville". Used for suggestions; validation itself stays strict.
func Slugify(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	flat, _, err := transform.String(t, name)
	if err != nil {
		flat = name
	}
	flat = strings.ToLower(strings.TrimSpace(flat))
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		case r == ' ' || r == '.':
			return '_'
		default:
			return -1
		}
	}, flat)
}

// ValidateName checks that a node name is slug-safe and not forbidden by
// the project settings.
func ValidateName(ctx context.Context, sess *session.Session, name string) apperrors.Error {
	if name == "" {
		return ErrValidation.Msg("name is empty")
	}
	if !slugPattern.MatchString(name) {
		return ErrValidation.Msg("name is not slug safe: " + name + " (try " + Slugify(name) + ")")
	}
	forbidden, err := sess.Store.GetSetting(ctx, "forbidden_names")
	if err != nil {
		// settings row missing is not a reason to refuse a create
		return nil
	}
	for _, v := range gjson.Parse(forbidden).Array() {
		if v.String() == name {
			return ErrValidation.Msg("name is forbidden: " + name)
		}
	}
	return nil
}

// ChildPath derives the canonical project-relative path of a child node.
func ChildPath(parentPath, name string) string {
	if parentPath == "" {
		return name
	}
	return path.Join(parentPath, name)
}

// WorkEnvPath derives the working directory of a DCC under a variant.
func WorkEnvPath(variantPath, software string) string {
	return path.Join(variantPath, WorkDirName, software)
}

// ExportPath derives the directory of an export group under a variant.
func ExportPath(variantPath, exportName string) string {
	return path.Join(variantPath, ExportsDirName, exportName)
}

// VersionFileName builds the canonical work file name:
// <asset>_<stage>_<variant>_<version>.<ext>.
func VersionFileName(asset, stage, variant, version, ext string) string {
	return asset + "_" + stage + "_" + variant + "_" + version + "." + strings.TrimPrefix(ext, ".")
}

// sanitizePathForArchive flattens a project-relative path into a file
// name fragment.
func sanitizePathForArchive(rel string) string {
	return strings.ReplaceAll(strings.Trim(rel, "/"), "/", "-")
}
