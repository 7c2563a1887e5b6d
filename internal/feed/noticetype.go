package feed

import (
	"go.uber.org/zap"

	"github.com/sells-group/solwatch/internal/model"
)

// apiTypeCodes maps the REST API's short notice-type codes to canonical
// notice types.
var apiTypeCodes = map[string]model.NoticeType{
	"p": model.TypePresolicitation,
	"k": model.TypeCombined,
	"o": model.TypeSolicitation,
	"m": model.TypeModification,
	"a": model.TypeAward,
	"r": model.TypeSourcesSought,
	"s": model.TypeSpecialNotice,
	"u": model.TypeJustification,
	"g": model.TypeSaleOfSurplus,
	"i": model.TypeIntentToBundle,
}

// flatTypeTags maps nightly-feed record tags to canonical notice types.
// ARCHIVE/UNARCHIVE records carry lifecycle events, not notices, and are
// deliberately absent.
var flatTypeTags = map[string]model.NoticeType{
	"PRESOL":  model.TypePresolicitation,
	"COMBINE": model.TypeCombined,
	"AWARD":   model.TypeAward,
	"MOD":     model.TypeModification,
	"AMDCSS":  model.TypeModification,
	"SRCSGT":  model.TypeSourcesSought,
	"SNOTE":   model.TypeSpecialNotice,
	"SSALE":   model.TypeSaleOfSurplus,
	"JA":      model.TypeJustification,
	"ITB":     model.TypeIntentToBundle,
}

// MapAPICode resolves a REST API type code. Unmapped codes log a warning and
// return ok=false; callers drop the notice from typed buckets unless their
// type filter explicitly whitelists the raw code.
func MapAPICode(code string) (model.NoticeType, bool) {
	if t, ok := apiTypeCodes[code]; ok {
		return t, true
	}
	zap.L().Warn("feed: unmapped notice type code", zap.String("code", code))
	return "", false
}

// MapFlatTag resolves a nightly-feed record tag to a notice type.
func MapFlatTag(tag string) (model.NoticeType, bool) {
	t, ok := flatTypeTags[tag]
	return t, ok
}
