// Package media turns loosely structured media descriptors into cached
// attachments: normalization, a chain of resolver strategies with scraping
// fallbacks, and the attachment pipeline tying them to the cache store.
package media

import (
	"log"
	"strconv"
	"strings"

	"postline-bot/internal/database/models"
)

// Descriptor is one normalized media entry from a generation payload.
type Descriptor struct {
	Type        models.MediaType
	Resolver    string
	Caption     string
	PostedAt    string
	SourceLabel string
	SourceURL   string
	HasSpoiler  *bool
	Reference   map[string]string
}

// MaxAttachments caps how many media units a single post may carry.
const MaxAttachments = 5

// referenceURLKeys are the reference entries that can stand in for a source
// URL when the descriptor carries none, in preference order.
var referenceURLKeys = []string{
	"direct_url",
	"download_url",
	"source_url",
	"tg_post_url",
	"source_locator",
	"tweet_url",
	"permalink",
	"url",
}

// fallbackURL returns the descriptor's source URL, or the first URL-shaped
// reference entry when none was given.
func (d Descriptor) fallbackURL() string {
	if d.SourceURL != "" {
		return d.SourceURL
	}
	for _, key := range referenceURLKeys {
		value := strings.TrimSpace(d.Reference[key])
		if strings.HasPrefix(value, "http://") || strings.HasPrefix(value, "https://") {
			return value
		}
	}
	return ""
}

// identifierKeys are the reference keys lifted from a descriptor's top level
// into the canonical reference map.
var identifierKeys = []string{
	"tweet_id",
	"tg_post_url",
	"message_id",
	"chat_id",
	"video_id",
	"record_id",
	"media_id",
	"post_id",
	"story_id",
	"permalink",
	"source_locator",
}

// placeholderValues are sentinel strings the generation service sometimes
// echoes instead of real identifiers; they are discarded as noise.
var placeholderValues = map[string]struct{}{
	"tg_post_url": {}, "tweet_id": {}, "message_id": {}, "chat_id": {},
	"video_id": {}, "record_id": {}, "media_id": {}, "post_id": {},
	"story_id": {}, "permalink": {}, "external_id": {}, "source_locator": {},
}

// identifierKeyAliases maps localized or free-form key spellings to canonical ones.
var identifierKeyAliases = map[string]string{
	"identyfikator":         "identifier",
	"identyfikator źródła":  "source_locator",
	"identyfikator zrodla":  "source_locator",
	"source identifier":     "source_locator",
	"source id":             "source_locator",
	"id źródła":             "source_locator",
	"id zrodla":             "source_locator",
	"source locator":        "source_locator",
}

var typeAliases = map[string]models.MediaType{
	"image":     models.MediaPhoto,
	"picture":   models.MediaPhoto,
	"photo":     models.MediaPhoto,
	"animation": models.MediaDoc,
	"gif":       models.MediaDoc,
	"document":  models.MediaDoc,
	"file":      models.MediaDoc,
	"pdf":       models.MediaDoc,
	"video":     models.MediaVideo,
	"doc":       models.MediaDoc,
}

// NormalizeType maps a raw type value to photo, video or doc; unknown values
// default to photo.
func NormalizeType(value any) models.MediaType {
	mapped := strings.ToLower(strings.TrimSpace(stringify(value)))
	if t, ok := typeAliases[mapped]; ok {
		return t
	}
	return models.MediaPhoto
}

// ParseDescriptors normalizes a raw media payload into canonical descriptors.
// A single map or bare URL string is treated as a one-item list. At most
// MaxAttachments descriptors are returned.
func ParseDescriptors(raw any) []Descriptor {
	items := asList(raw)
	descriptors := make([]Descriptor, 0, len(items))

	for _, rawItem := range items {
		entry, ok := asEntry(rawItem)
		if !ok {
			continue
		}
		entry = applyKeyAliases(entry)

		d := Descriptor{
			Type:        NormalizeType(entry["type"]),
			Caption:     strings.TrimSpace(firstString(entry, "caption", "title")),
			SourceLabel: strings.TrimSpace(stringify(entry["source"])),
			PostedAt:    strings.TrimSpace(stringify(entry["posted_at"])),
			Reference:   map[string]string{},
		}

		if spoiler, present := boolValue(entry, "has_spoiler", "spoiler"); present {
			d.HasSpoiler = &spoiler
		}

		d.Resolver = strings.ToLower(strings.TrimSpace(
			firstString(entry, "resolver", "provider", "source_type", "source_name")))

		d.SourceURL = strings.TrimSpace(firstURLFrom(entry))

		// Explicit reference object first, then well-known top-level keys.
		if ref, ok := entry["reference"].(map[string]any); ok {
			for key, value := range ref {
				if value == nil {
					continue
				}
				d.Reference[key] = strings.TrimSpace(stringify(value))
			}
		}
		for _, key := range identifierKeys {
			value, ok := entry[key]
			if !ok || value == nil {
				continue
			}
			if v := strings.TrimSpace(stringify(value)); v != "" {
				d.Reference[key] = v
			}
		}

		mergeIdentifier(&d, entry)

		if d.PostedAt != "" {
			if _, ok := d.Reference["posted_at"]; !ok {
				d.Reference["posted_at"] = d.PostedAt
			}
		}

		inferResolver(&d)
		stripPlaceholders(&d)

		if d.Resolver == "telegram" {
			if locator, ok := d.Reference["source_locator"]; ok {
				delete(d.Reference, "source_locator")
				if locator != "" {
					if _, exists := d.Reference["tg_post_url"]; !exists {
						d.Reference["tg_post_url"] = locator
					}
				}
			}
		}

		if d.SourceURL == "" && len(d.Reference) == 0 {
			log.Printf("[Media] Dropping descriptor without identifier or URL: %v", rawItem)
			continue
		}

		// A t.me permalink is not directly fetchable; force the resolver path.
		if d.Resolver == "telegram" && d.SourceURL != "" && d.SourceURL == d.Reference["tg_post_url"] {
			d.SourceURL = ""
		}

		descriptors = append(descriptors, d)
	}

	if len(descriptors) > MaxAttachments {
		log.Printf("[Media] Dropping %d descriptors over the attachment cap", len(descriptors)-MaxAttachments)
		descriptors = descriptors[:MaxAttachments]
	}
	return descriptors
}

// mergeIdentifier folds the free-form identifier field (map or string) into
// the reference map, following the resolver-specific conventions.
func mergeIdentifier(d *Descriptor, entry map[string]any) {
	identifier := entry["identifier"]
	if identifier == nil {
		identifier = entry["source_locator"]
	}
	if identifier == nil {
		identifier = entry["id"]
	}

	switch ident := identifier.(type) {
	case map[string]any:
		name := strings.TrimSpace(firstString(ident, "name", "nazwa", "key", "type"))
		value := strings.TrimSpace(firstString(ident, "value", "wartosc", "id", "identifier"))
		if name != "" && value != "" {
			if _, exists := d.Reference[name]; !exists {
				d.Reference[name] = value
			}
			return
		}
		for key, raw := range ident {
			if v := strings.TrimSpace(stringify(raw)); v != "" {
				if _, exists := d.Reference[key]; !exists {
					d.Reference[key] = v
				}
			}
		}
	case string:
		value := strings.TrimSpace(ident)
		if value == "" {
			return
		}
		switch {
		case strings.HasPrefix(value, "http://") || strings.HasPrefix(value, "https://"):
			if d.SourceURL == "" {
				d.SourceURL = value
			}
			if d.Resolver == "telegram" {
				d.Reference["tg_post_url"] = value
			}
		case entry[value] != nil && strings.TrimSpace(stringify(entry[value])) != "":
			// Identifier names a sibling key holding the real value.
			d.Reference[value] = strings.TrimSpace(stringify(entry[value]))
		case d.Resolver == "telegram":
			d.Reference["message_id"] = value
		case d.Resolver == "twitter":
			d.Reference["tweet_id"] = value
		case d.Resolver == "instagram":
			d.Reference["shortcode"] = value
		default:
			d.Reference["external_id"] = value
		}
	}
}

// inferResolver fills in a missing resolver name from the reference shape.
func inferResolver(d *Descriptor) {
	if d.Resolver != "" {
		return
	}
	switch {
	case d.Reference["tweet_id"] != "":
		d.Resolver = "twitter"
	case d.Reference["tg_post_url"] != "" || strings.HasPrefix(d.SourceURL, "https://t.me/"):
		d.Resolver = "telegram"
	case d.Reference["shortcode"] != "":
		d.Resolver = "instagram"
	}
}

// stripPlaceholders removes reference values that merely echo a key name or a
// known sentinel string.
func stripPlaceholders(d *Descriptor) {
	for key, value := range d.Reference {
		lowered := strings.ToLower(strings.TrimSpace(value))
		if lowered == "" {
			delete(d.Reference, key)
			continue
		}
		_, sentinel := placeholderValues[lowered]
		if sentinel || lowered == strings.ToLower(key) {
			log.Printf("[Media] Dropping placeholder identifier %s=%s", key, value)
			delete(d.Reference, key)
		}
	}
}

func applyKeyAliases(entry map[string]any) map[string]any {
	normalized := make(map[string]any, len(entry))
	for key, value := range entry {
		k := strings.TrimSpace(key)
		if alias, ok := identifierKeyAliases[strings.ToLower(k)]; ok {
			k = alias
		}
		normalized[k] = value
	}
	return normalized
}

func asList(raw any) []any {
	switch v := raw.(type) {
	case nil:
		return nil
	case []any:
		return v
	case map[string]any, string:
		return []any{v}
	default:
		return nil
	}
}

func asEntry(raw any) (map[string]any, bool) {
	switch v := raw.(type) {
	case map[string]any:
		return v, true
	case string:
		return map[string]any{"url": v}, true
	default:
		return nil, false
	}
}

// firstURLFrom searches a nested structure for the first URL-bearing value,
// checking well-known keys before descending into known containers.
func firstURLFrom(value any) string {
	urlKeys := []string{"source_url", "download_url", "url", "image_url", "href"}
	nestedKeys := []string{"source", "asset", "file", "image", "media", "items", "data", "results", "variants"}

	stack := []any{value}
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		switch v := current.(type) {
		case string:
			candidate := strings.TrimSpace(v)
			if strings.HasPrefix(candidate, "http://") || strings.HasPrefix(candidate, "https://") {
				return candidate
			}
		case map[string]any:
			for _, key := range urlKeys {
				if raw, ok := v[key].(string); ok && strings.TrimSpace(raw) != "" {
					return strings.TrimSpace(raw)
				}
			}
			for _, key := range nestedKeys {
				if nested := v[key]; nested != nil {
					stack = append(stack, nested)
				}
			}
		case []any:
			stack = append(stack, v...)
		}
	}
	return ""
}

func firstString(entry map[string]any, keys ...string) string {
	for _, key := range keys {
		if raw, ok := entry[key]; ok && raw != nil {
			if v := stringify(raw); v != "" {
				return v
			}
		}
	}
	return ""
}

func boolValue(entry map[string]any, keys ...string) (value, present bool) {
	for _, key := range keys {
		raw, ok := entry[key]
		if !ok || raw == nil {
			continue
		}
		switch v := raw.(type) {
		case bool:
			return v, true
		case string:
			parsed, err := strconv.ParseBool(v)
			if err == nil {
				return parsed, true
			}
		}
	}
	return false, false
}

// stringify renders JSON scalar values the way they were written: integral
// numbers without a fraction part.
func stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return ""
	}
}
