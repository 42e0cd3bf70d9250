package objectstore

import "fmt"

// Key builders for the object layouts named in spec §6.

// RawKey returns the raw upload key for a project/uuid/filename triple.
func RawKey(projectID, uuid, filename string) string {
	return fmt.Sprintf("projects/%s/%s_%s", projectID, uuid, filename)
}

// ProcessedKey returns the canonical columnar artifact key for an ingestion job.
func ProcessedKey(projectID, jobID string) string {
	return fmt.Sprintf("projects/%s/processed/%s.fdcol", projectID, jobID)
}

// TileKey returns the tile object key for one series/level.
func TileKey(projectID, vizID string, seriesIndex, level int) string {
	return fmt.Sprintf("projects/%s/visualizations/%s/series_%d/level_%d.fdcol", projectID, vizID, seriesIndex, level)
}

// ArtifactKey returns the rendered chart artifact key.
func ArtifactKey(projectID, vizID string) string {
	return fmt.Sprintf("projects/%s/visualizations/%s.html", projectID, vizID)
}
