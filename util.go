package uasset

import "strings"

// primaryAssetExtensions are the package file extensions AssetRegistry
// treats as a group's primary file (as opposed to a companion).
var primaryAssetExtensions = map[string]bool{
	".uasset": true,
	".umap":   true,
}

var companionAssetExtensions = map[string]bool{
	".uexp":  true,
	".ubulk": true,
}

// stripAssetExtension removes a trailing .uasset/.umap/.uexp/.ubulk
// extension, if present, leaving the logical package base path.
func stripAssetExtension(path string) string {
	if i := strings.LastIndexByte(path, '.'); i >= 0 {
		ext := strings.ToLower(path[i:])
		if primaryAssetExtensions[ext] || companionAssetExtensions[ext] {
			return path[:i]
		}
	}
	return path
}

func extensionOf(path string) string {
	if i := strings.LastIndexByte(path, '.'); i >= 0 {
		return strings.ToLower(path[i:])
	}
	return ""
}

// normalizeLogicalPath lowercases a logical path for case-insensitive
// lookup while leaving the stored Entry.LogicalPath untouched elsewhere.
func normalizeLogicalPath(path string) string {
	return strings.ToLower(strings.ReplaceAll(path, "\\", "/"))
}

func min64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
