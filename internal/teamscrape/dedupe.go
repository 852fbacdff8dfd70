package teamscrape

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/leadtrace/internal/model"
)

// foldTransformer strips diacritics so "José Vermeulen" and
// "Jose Vermeulen" dedupe to the same key.
var foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// FoldName normalizes a person name to a dedup key: diacritics removed,
// lowercased, whitespace collapsed.
func FoldName(name string) string {
	folded, _, err := transform.String(foldTransformer, name)
	if err != nil {
		folded = name
	}
	return strings.Join(strings.Fields(strings.ToLower(folded)), " ")
}

// contactKey returns the best available contact discriminator for a
// person, so two different people sharing a name stay distinct.
func contactKey(p model.Person) string {
	switch {
	case p.Email != "":
		return "email:" + p.Email
	case p.LinkedIn != "":
		return "li:" + strings.ToLower(p.LinkedIn)
	case p.Phone != "":
		return "tel:" + p.Phone
	default:
		return ""
	}
}

type entry struct {
	index int
}

// Dedupe merges people by folded name + contact key, preferring the
// richer card when two collide.
func Dedupe(people []model.Person) []model.Person {
	byKey := make(map[string]entry)
	var out []model.Person

	for _, p := range people {
		name := FoldName(p.Name)
		if name == "" {
			continue
		}
		key := name + "|" + contactKey(p)

		if e, ok := byKey[key]; ok {
			out[e.index] = mergePeople(out[e.index], p)
			continue
		}

		// A contact-less card also merges into a same-name card that
		// has contact info, and vice versa.
		if contactKey(p) == "" {
			if e, ok := firstWithName(byKey, name); ok {
				out[e.index] = mergePeople(out[e.index], p)
				continue
			}
		} else if e, ok := byKey[name+"|"]; ok {
			merged := mergePeople(out[e.index], p)
			out[e.index] = merged
			delete(byKey, name+"|")
			byKey[name+"|"+contactKey(merged)] = e
			continue
		}

		byKey[key] = entry{index: len(out)}
		out = append(out, p)
	}

	return out
}

func firstWithName(byKey map[string]entry, name string) (entry, bool) {
	for key, e := range byKey {
		if strings.HasPrefix(key, name+"|") {
			return e, true
		}
	}
	return entry{}, false
}

// mergePeople fills blanks in a with values from b.
func mergePeople(a, b model.Person) model.Person {
	if a.Role == "" {
		a.Role = b.Role
	}
	if a.Email == "" {
		a.Email = b.Email
	}
	if a.Phone == "" {
		a.Phone = b.Phone
	}
	if a.LinkedIn == "" {
		a.LinkedIn = b.LinkedIn
	}
	if a.Photo == "" {
		a.Photo = b.Photo
	}
	if a.Source == "dom" && b.Source == "jsonld" {
		a.Source = "jsonld"
	}
	return a
}
