// Package css inspects stylesheets supplied for the book.
package css

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	parse "github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"
	"go.uber.org/zap"
)

// Summary describes parsed stylesheet.
type Summary struct {
	Rulesets int
	AtRules  []string
	Imports  []string
	// URLs referenced from declarations, such resources are not packed into
	// the book and will not be available to reader.
	URLs []string
}

// External reports whether stylesheet depends on anything outside of itself.
func (s *Summary) External() bool {
	return len(s.Imports) > 0 || len(s.URLs) > 0
}

// Inspect parses stylesheet and collects its external references. Source is
// only used for logging.
func Inspect(data []byte, source string, log *zap.Logger) (*Summary, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("css")
	log.Debug("Parsing CSS", zap.String("source", source), zap.Int("bytes", len(data)))

	sum := &Summary{}
	parser := css.NewParser(parse.NewInput(bytes.NewReader(data)), false)
	for {
		gt, _, data := parser.Next()
		switch gt {
		case css.ErrorGrammar:
			if err := parser.Err(); err != nil && !errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("malformed stylesheet %s: %w", source, err)
			}
			log.Debug("Parsed CSS", zap.Int("rulesets", sum.Rulesets), zap.Int("imports", len(sum.Imports)), zap.Int("urls", len(sum.URLs)))
			return sum, nil
		case css.AtRuleGrammar:
			if string(data) == "@import" {
				if u := importURL(parser.Values()); u != "" {
					sum.Imports = append(sum.Imports, u)
				}
				continue
			}
			sum.AtRules = append(sum.AtRules, string(data))
		case css.BeginAtRuleGrammar:
			sum.AtRules = append(sum.AtRules, string(data))
		case css.BeginRulesetGrammar:
			sum.Rulesets++
		case css.DeclarationGrammar:
			sum.URLs = append(sum.URLs, declarationURLs(parser.Values())...)
		}
	}
}

// importURL handles: @import "url"; @import url("url"); @import url(url);
func importURL(tokens []css.Token) string {
	for _, t := range tokens {
		switch t.TokenType {
		case css.StringToken:
			return unquote(string(t.Data))
		case css.URLToken:
			return urlTokenValue(t.Data)
		}
	}
	return ""
}

func declarationURLs(tokens []css.Token) (urls []string) {
	for i, t := range tokens {
		switch t.TokenType {
		case css.URLToken:
			if u := urlTokenValue(t.Data); u != "" {
				urls = append(urls, u)
			}
		case css.FunctionToken:
			// url("...") is lexed as function with string argument
			if !strings.EqualFold(string(t.Data), "url(") {
				continue
			}
			for _, arg := range tokens[i+1:] {
				if arg.TokenType == css.WhitespaceToken {
					continue
				}
				if arg.TokenType == css.StringToken {
					if u := unquote(string(arg.Data)); u != "" {
						urls = append(urls, u)
					}
				}
				break
			}
		}
	}
	return urls
}

func urlTokenValue(data []byte) string {
	s := strings.TrimSpace(string(data))
	if len(s) >= 4 && strings.EqualFold(s[:4], "url(") {
		s = s[4:]
	}
	s = strings.TrimSuffix(s, ")")
	return unquote(strings.TrimSpace(s))
}

func unquote(s string) string {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}
