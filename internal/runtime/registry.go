package runtime

import "strings"

// ExtractRegistry splits image_name on '/' and returns the registry segment
// when the first part looks like a qualified host (contains '.' or ':'),
// the same heuristic Docker itself uses to distinguish a private registry
// prefix from a Docker Hub user/organization namespace.
//
//	alpine                -> ("", false)
//	myreg.io/alpine        -> ("myreg.io", true)
//	localhost:5000/alpine  -> ("localhost:5000", true)
//	user/alpine            -> ("", false)
func ExtractRegistry(imageName string) (string, bool) {
	parts := strings.SplitN(imageName, "/", 2)
	if len(parts) == 1 {
		return "", false
	}
	first := parts[0]
	if strings.Contains(first, ".") || strings.Contains(first, ":") {
		return first, true
	}
	return "", false
}
