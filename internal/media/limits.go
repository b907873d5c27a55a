package media

import "fmt"

const MB = 1024 * 1024

type limit struct {
	maxBytes     int64
	allowedMIMEs map[string]struct{}
}

var imageMIMEs = map[string]struct{}{
	"image/jpeg": {},
	"image/png":  {},
	"image/gif":  {},
	"image/webp": {},
}

var videoMIMEs = map[string]struct{}{
	"video/mp4":       {},
	"video/quicktime": {},
}

// platformLimits are static upload ceilings per platform and media kind.
var platformLimits = map[string]map[Kind]limit{
	"twitter": {
		KindImage: {maxBytes: 5 * MB, allowedMIMEs: imageMIMEs},
		KindVideo: {maxBytes: 512 * MB, allowedMIMEs: videoMIMEs},
	},
	"linkedin": {
		KindImage: {maxBytes: 8 * MB, allowedMIMEs: imageMIMEs},
		KindVideo: {maxBytes: 200 * MB, allowedMIMEs: videoMIMEs},
	},
	"instagram": {
		KindImage: {maxBytes: 8 * MB, allowedMIMEs: imageMIMEs},
		KindVideo: {maxBytes: 100 * MB, allowedMIMEs: videoMIMEs},
	},
}

// ValidateForPlatform checks an asset against the platform's size ceiling and
// MIME allow-list. Errors name the platform, the limit and the observed value.
func ValidateForPlatform(asset *Asset, platform string) error {
	limits, ok := platformLimits[platform]
	if !ok {
		return fmt.Errorf("unknown platform %q", platform)
	}

	kind := asset.Kind
	if kind == KindThumbnail {
		kind = KindImage
	}

	l, ok := limits[kind]
	if !ok {
		return fmt.Errorf("%s does not accept %s media", platform, asset.Kind)
	}

	if _, ok := l.allowedMIMEs[asset.MIME]; !ok {
		return fmt.Errorf("%s does not accept %s media of type %s", platform, kind, asset.MIME)
	}

	if asset.Size > l.maxBytes {
		return fmt.Errorf("%s %s limit is %d bytes, got %d bytes", platform, kind, l.maxBytes, asset.Size)
	}

	return nil
}
