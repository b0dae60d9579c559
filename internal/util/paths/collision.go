// Package paths resolves local filename collisions for concurrent
// downloads (§4.1).
package paths

import "path/filepath"

// ResolveCollision returns localPath unchanged if it doesn't appear in
// claimed, or a disambiguated variant (disambiguator inserted before the
// extension) if it does. Two peers offering files with the same base name
// into the same download directory would otherwise silently overwrite one
// another; disambiguator is the new transfer's own ID, guaranteed unique.
//
// Example: "output.zip" colliding with an existing claim becomes
// "output_<transferID>.zip".
func ResolveCollision(localPath string, claimed map[string]bool, disambiguator string) string {
	if !claimed[localPath] {
		return localPath
	}
	ext := filepath.Ext(localPath)
	base := localPath[:len(localPath)-len(ext)]
	return base + "_" + disambiguator + ext
}
