package convert

import (
	"bytes"
	"fmt"
	"net/url"
	"text/template"

	sprig "github.com/go-task/slim-sprig/v3"

	"web2epub/config"
)

// Values is a struct that holds variables we make available for template expansion
type Values struct {
	Context string
	Title   string
	Author  string
	Date    string
	Count   int
	Hosts   []string
}

func buildHosts(urls []string) []string {
	result := make([]string, 0, len(urls))
	seen := make(map[string]struct{}, len(urls))
	for _, s := range urls {
		u, err := url.Parse(s)
		if err != nil || u.Host == "" {
			continue
		}
		if _, ok := seen[u.Host]; ok {
			continue
		}
		seen[u.Host] = struct{}{}
		result = append(result, u.Host)
	}
	return result
}

func expandTemplate(name config.TemplateFieldName, field string, values Values) (string, error) {
	funcMap := sprig.FuncMap()

	tmpl, err := template.New(string(name)).Funcs(funcMap).Parse(field)
	if err != nil {
		return "", fmt.Errorf("unable to parse template field %s: %w", name, err)
	}

	values.Context = string(name)

	buf := new(bytes.Buffer)
	if err := tmpl.Execute(buf, values); err != nil {
		return "", err
	}
	return buf.String(), nil
}
