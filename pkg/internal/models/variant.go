package models

import (
	"database/sql/driver"
	"fmt"
	"math"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/samber/lo"
)

// Variant is the canonical discriminant of a timeline entry.
// Every ingestion point converts whatever encoding it received into one of
// these constants through NormalizeVariant, downstream code compares
// Variant values only.
type Variant string

const (
	VariantUnknown    = Variant("")
	VariantText       = Variant("text")
	VariantImage      = Variant("image")
	VariantVideo      = Variant("video")
	VariantLink       = Variant("link")
	VariantEvent      = Variant("event")
	VariantPoll       = Variant("poll")
	VariantBounty     = Variant("bounty")
	VariantProject    = Variant("project")
	VariantLivestream = Variant("livestream")

	// Foreign feed items only, never stored as content items.
	VariantProposal   = Variant("proposal")
	VariantNFTListing = Variant("nft_listing")
)

// ContentVariants is ordered by the legacy numeric enum value.
var ContentVariants = []Variant{
	VariantText,
	VariantImage,
	VariantVideo,
	VariantLink,
	VariantEvent,
	VariantPoll,
	VariantBounty,
	VariantProject,
	VariantLivestream,
}

var ForeignVariants = []Variant{
	VariantProposal,
	VariantNFTListing,
}

var variantAliases = map[string]Variant{
	"text":       VariantText,
	"image":      VariantImage,
	"video":      VariantVideo,
	"link":       VariantLink,
	"event":      VariantEvent,
	"poll":       VariantPoll,
	"bounty":     VariantBounty,
	"project":    VariantProject,
	"livestream": VariantLivestream,
	"live":       VariantLivestream,
	"proposal":   VariantProposal,
	"nftlisting": VariantNFTListing,
	"nft":        VariantNFTListing,
}

// Keys under which legacy nested objects carry their tag,
// e.g. {"type": "EVENT"} or {"kind": 4}.
var legacyTagKeys = []string{"type", "kind", "variant", "__kind"}

func (v Variant) String() string {
	return string(v)
}

func (v Variant) IsContent() bool {
	return lo.Contains(ContentVariants, v)
}

func (v Variant) IsForeign() bool {
	return lo.Contains(ForeignVariants, v)
}

func (v Variant) IsKnown() bool {
	return v.IsContent() || v.IsForeign()
}

// Code returns the legacy numeric enum value of a content variant.
func (v Variant) Code() (int, bool) {
	idx := lo.IndexOf(ContentVariants, v)
	return idx, idx >= 0
}

// NormalizeVariant accepts numeric enum values, strings in any case
// (including all-caps), legacy nested objects and raw JSON, and returns the
// canonical Variant.
func NormalizeVariant(raw any) (Variant, error) {
	switch val := raw.(type) {
	case nil:
		return VariantUnknown, fmt.Errorf("%w: empty tag", ErrUnknownVariant)
	case Variant:
		return normalizeVariantName(string(val))
	case *Variant:
		if val == nil {
			return VariantUnknown, fmt.Errorf("%w: empty tag", ErrUnknownVariant)
		}
		return normalizeVariantName(string(*val))
	case string:
		return normalizeVariantName(val)
	case []byte:
		return normalizeVariantJSON(val)
	case jsoniter.RawMessage:
		return normalizeVariantJSON(val)
	case jsoniter.Number:
		return normalizeVariantName(string(val))
	case int:
		return variantFromCode(int64(val))
	case int8:
		return variantFromCode(int64(val))
	case int16:
		return variantFromCode(int64(val))
	case int32:
		return variantFromCode(int64(val))
	case int64:
		return variantFromCode(val)
	case uint:
		return variantFromCode(int64(val))
	case uint8:
		return variantFromCode(int64(val))
	case uint16:
		return variantFromCode(int64(val))
	case uint32:
		return variantFromCode(int64(val))
	case uint64:
		if val > math.MaxInt32 {
			return VariantUnknown, fmt.Errorf("%w: code %d", ErrUnknownVariant, val)
		}
		return variantFromCode(int64(val))
	case float32:
		return variantFromFloat(float64(val))
	case float64:
		return variantFromFloat(val)
	case map[string]any:
		return variantFromObject(val)
	default:
		return VariantUnknown, fmt.Errorf("%w: unsupported encoding %T", ErrUnknownVariant, raw)
	}
}

// MustNormalizeVariant returns VariantUnknown instead of an error.
func MustNormalizeVariant(raw any) Variant {
	v, err := NormalizeVariant(raw)
	if err != nil {
		return VariantUnknown
	}
	return v
}

// IsVariant reports whether the raw tag denotes the wanted variant, with both
// sides normalized first.
func IsVariant(raw any, want any) bool {
	have, err := NormalizeVariant(raw)
	if err != nil {
		return false
	}
	target, err := NormalizeVariant(want)
	if err != nil {
		return false
	}
	return have == target
}

func normalizeVariantName(in string) (Variant, error) {
	name := strings.ToLower(strings.TrimSpace(in))
	if len(name) == 0 {
		return VariantUnknown, fmt.Errorf("%w: empty tag", ErrUnknownVariant)
	}
	if code, err := strconv.ParseInt(name, 10, 64); err == nil {
		return variantFromCode(code)
	}
	compact := strings.NewReplacer("_", "", "-", "", " ", "").Replace(name)
	if v, ok := variantAliases[compact]; ok {
		return v, nil
	}
	return VariantUnknown, fmt.Errorf("%w: %q", ErrUnknownVariant, in)
}

func normalizeVariantJSON(raw []byte) (Variant, error) {
	var decoded any
	if err := jsoniter.Unmarshal(raw, &decoded); err != nil {
		// Unquoted tags such as EVENT are not valid JSON but still a tag.
		return normalizeVariantName(string(raw))
	}
	return NormalizeVariant(decoded)
}

func variantFromCode(code int64) (Variant, error) {
	if code < 0 || code >= int64(len(ContentVariants)) {
		return VariantUnknown, fmt.Errorf("%w: code %d", ErrUnknownVariant, code)
	}
	return ContentVariants[code], nil
}

func variantFromFloat(val float64) (Variant, error) {
	if val != math.Trunc(val) {
		return VariantUnknown, fmt.Errorf("%w: code %v", ErrUnknownVariant, val)
	}
	return variantFromCode(int64(val))
}

func variantFromObject(obj map[string]any) (Variant, error) {
	for _, key := range legacyTagKeys {
		if tag, ok := obj[key]; ok {
			return NormalizeVariant(tag)
		}
	}
	// Enum-as-object encoding: {"event": {}}
	if len(obj) == 1 {
		for key := range obj {
			return normalizeVariantName(key)
		}
	}
	return VariantUnknown, fmt.Errorf("%w: object with %d keys", ErrUnknownVariant, len(obj))
}

func (v Variant) MarshalJSON() ([]byte, error) {
	return jsoniter.Marshal(string(v))
}

func (v *Variant) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*v = VariantUnknown
		return nil
	}
	out, err := normalizeVariantJSON(data)
	if err != nil {
		return err
	}
	*v = out
	return nil
}

// Scan normalizes tags read back from the database, rows written by older
// clients may hold numeric or upper-case tags.
func (v *Variant) Scan(value any) error {
	if value == nil {
		*v = VariantUnknown
		return nil
	}
	out, err := NormalizeVariant(value)
	if err != nil {
		return err
	}
	*v = out
	return nil
}

func (v Variant) Value() (driver.Value, error) {
	return string(v), nil
}
