package obs

import "strings"

// CanonicalPath collapses resource identifiers so metric labels stay low-cardinality.
func CanonicalPath(path string) string {
	if path == "" {
		return "/"
	}
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	segments := strings.Split(strings.TrimPrefix(path, "/"), "/")
	switch {
	case len(segments) == 3 && segments[0] == "vacina-estoque":
		return "/vacina-estoque/:vacinaId/:estoqueId"
	case len(segments) == 2 && segments[0] == "vacina-estoque":
		return "/vacina-estoque/:id"
	case len(segments) == 2 && segments[0] == "reg-temperatura":
		return "/reg-temperatura/:estoqueId"
	case len(segments) == 2 && segments[0] == "salas":
		return "/salas/:id"
	case len(segments) == 2 && segments[0] == "profissionais":
		return "/profissionais/:id"
	case len(segments) == 2 && segments[0] == "cep":
		return "/cep/:codigo"
	case len(segments) >= 2 && segments[0] == "cadastro":
		rest := append([]string{"/cadastro/:id"}, segments[2:]...)
		return strings.Join(rest, "/")
	}
	return path
}
