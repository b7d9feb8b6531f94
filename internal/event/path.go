package event

import (
	"path"
	"strings"
)

// RegionUnknown is used when the object path carries no region segment.
const RegionUnknown = "unknown"

// ParseObjectPath extracts the file identifier, region identifier, and
// original file name from an object path.
//
// The canonical upload layout is uploads/{region}/{fileID}_{originalName}.
// Stage artifacts (text/{fileID}.txt, clean/{fileID}.json, classified/...)
// and uploads that miss the pattern fall back to deriving the file ID from
// the file name: the portion before the first underscore, or the stem when
// no underscore is present. Region falls back to RegionUnknown.
func ParseObjectPath(objectPath string) (fileID, regionID, originalName string) {
	objectPath = strings.Trim(objectPath, "/")
	segments := strings.Split(objectPath, "/")
	base := segments[len(segments)-1]

	if len(segments) >= 3 && segments[0] == "uploads" {
		regionID = segments[1]
		if idx := strings.Index(base, "_"); idx > 0 {
			return base[:idx], regionID, base[idx+1:]
		}
		return stem(base), regionID, base
	}

	if len(segments) >= 4 && segments[0] == "classified" {
		// classified/{category}/{region}/{fileID}_{name}
		regionID = segments[2]
		if idx := strings.Index(base, "_"); idx > 0 {
			return base[:idx], regionID, base[idx+1:]
		}
		return stem(base), regionID, base
	}

	if idx := strings.Index(base, "_"); idx > 0 {
		return base[:idx], RegionUnknown, base[idx+1:]
	}
	return stem(base), RegionUnknown, base
}

func stem(name string) string {
	return strings.TrimSuffix(name, path.Ext(name))
}
