package assets

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlugify(t *testing.T) {
	assert.Equal(t, "hero_ville", Slugify("Héro Ville"))
	assert.Equal(t, "my-asset_v2", Slugify("My-Asset_V2"))
	assert.Equal(t, "seq010", Slugify("  Séq010  "))
	assert.Equal(t, "", Slugify("!!!"))
}

func TestSlugPattern(t *testing.T) {
	assert.True(t, slugPattern.MatchString("hero"))
	assert.True(t, slugPattern.MatchString("seq_010-b"))
	assert.False(t, slugPattern.MatchString("Hero"))
	assert.False(t, slugPattern.MatchString("_hidden"))
	assert.False(t, slugPattern.MatchString("with space"))
	assert.False(t, slugPattern.MatchString(""))
}

func TestChildPath(t *testing.T) {
	assert.Equal(t, "assets", ChildPath("", "assets"))
	assert.Equal(t, "assets/characters", ChildPath("assets", "characters"))
}

func TestWorkEnvAndExportPaths(t *testing.T) {
	variant := "assets/characters/hero/modeling/main"
	assert.Equal(t, variant+"/_WORK/maya", WorkEnvPath(variant, "maya"))
	assert.Equal(t, variant+"/_EXPORTS/geo", ExportPath(variant, "geo"))
}

func TestVersionFileName(t *testing.T) {
	assert.Equal(t, "hero_modeling_main_0001.ma",
		VersionFileName("hero", "modeling", "main", "0001", "ma"))
	assert.Equal(t, "hero_modeling_main_0002.blend",
		VersionFileName("hero", "modeling", "main", "0002", ".blend"))
}

func TestSanitizePathForArchive(t *testing.T) {
	assert.Equal(t, "assets-characters-hero", sanitizePathForArchive("assets/characters/hero"))
	assert.Equal(t, "assets", sanitizePathForArchive("/assets/"))
}
