package query

import (
	"fmt"
	"regexp"
	"strings"
)

// Kind is an OpenAlex entity type, named after its resource path.
type Kind string

const (
	KindWork        Kind = "works"
	KindAuthor      Kind = "authors"
	KindSource      Kind = "sources"
	KindInstitution Kind = "institutions"
	KindTopic       Kind = "topics"
	KindPublisher   Kind = "publishers"
	KindFunder      Kind = "funders"
	KindKeyword     Kind = "keywords"
	KindDomain      Kind = "domains"
	KindField       Kind = "fields"
	KindSubfield    Kind = "subfields"
)

// kindPatterns is consulted in order; the first match wins.
var kindPatterns = []struct {
	pattern *regexp.Regexp
	kind    Kind
}{
	{regexp.MustCompile(`^W\d+$`), KindWork},
	{regexp.MustCompile(`^A\d+$`), KindAuthor},
	{regexp.MustCompile(`^S\d+$`), KindSource},
	{regexp.MustCompile(`^I\d+$`), KindInstitution},
	{regexp.MustCompile(`^T\d+$`), KindTopic},
	{regexp.MustCompile(`^P\d+$`), KindPublisher},
	{regexp.MustCompile(`^F\d+$`), KindFunder},
	{regexp.MustCompile(`^K\d+$`), KindKeyword},
	{regexp.MustCompile(`^domains/\d+$`), KindDomain},
	{regexp.MustCompile(`^fields/\d+$`), KindField},
	{regexp.MustCompile(`^subfields/\d+$`), KindSubfield},
}

var idPrefixes = []string{"https://openalex.org/", "http://openalex.org/", "openalex.org/"}

var entityIDPattern = regexp.MustCompile(`(?i)^[wasitpfk]\d+$`)

// CleanID strips the OpenAlex URL prefix from an identifier. Entity IDs such
// as w123 are upper-cased; any other value is returned as is.
func CleanID(id string) string {
	id = strings.TrimSpace(id)
	for _, prefix := range idPrefixes {
		if strings.HasPrefix(id, prefix) {
			id = strings.TrimPrefix(id, prefix)
			break
		}
	}
	if entityIDPattern.MatchString(id) {
		id = strings.ToUpper(id)
	}
	return id
}

// KindOf returns the entity kind of an identifier.
func KindOf(id string) (Kind, error) {
	cleaned := CleanID(id)
	for _, p := range kindPatterns {
		if p.pattern.MatchString(cleaned) {
			return p.kind, nil
		}
	}
	return "", fmt.Errorf("unknown OpenAlex ID format: %q", id)
}
