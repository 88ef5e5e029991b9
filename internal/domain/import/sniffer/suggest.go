package sniffer

import (
	"sort"
	"strings"

	"github.com/cloudflare/ahocorasick"

	"github.com/FACorreiaa/bookkeeper/internal/domain/import/mapping"
)

// Header aliases per field, lowercase. Multi-language like the exports we see.
var fieldAliases = map[mapping.Field][]string{
	mapping.FieldDate:              {"date", "data", "fecha", "posted", "booking date", "data mov", "data valor", "value date"},
	mapping.FieldAmount:            {"amount", "valor", "importe", "montante", "value", "sum"},
	mapping.FieldCurrency:          {"currency", "moeda", "divisa", "ccy"},
	mapping.FieldType:              {"type", "direction", "tipo", "dr/cr", "debit/credit"},
	mapping.FieldDescription:       {"description", "descrição", "descricao", "descripción", "descripcion", "memo", "details", "narrative", "merchant"},
	mapping.FieldCategory:          {"category", "categoria", "categoría"},
	mapping.FieldAccount:           {"account", "conta", "cuenta"},
	mapping.FieldVendor:            {"vendor", "supplier", "payee", "fornecedor", "proveedor"},
	mapping.FieldClient:            {"client", "customer", "cliente", "payer"},
	mapping.FieldNotes:             {"notes", "note", "comment", "observações", "notas"},
	mapping.FieldTags:              {"tags", "labels", "etiquetas"},
	mapping.FieldSecondaryAmount:   {"secondary amount", "original amount", "foreign amount"},
	mapping.FieldSecondaryCurrency: {"secondary currency", "original currency", "foreign currency"},
	mapping.FieldDocument:          {"document", "receipt", "attachment", "file", "recibo", "fatura"},
}

type alias struct {
	field mapping.Field
	text  string
}

var (
	aliases       []alias
	headerMatcher *ahocorasick.Matcher
)

func init() {
	for _, f := range mapping.AllFields {
		for _, a := range fieldAliases[f] {
			aliases = append(aliases, alias{field: f, text: a})
		}
	}
	patterns := make([]string, len(aliases))
	for i, a := range aliases {
		patterns[i] = a.text
	}
	headerMatcher = ahocorasick.NewStringMatcher(patterns)
}

type suggestion struct {
	header int
	field  mapping.Field
	score  int
}

// SuggestMapping proposes a field for each header it recognises. An exact
// alias beats a substring hit and longer aliases beat shorter ones, so
// "Secondary Amount" maps to secondaryAmount rather than amount. Each field
// and each header is used at most once.
func SuggestMapping(headers []string) mapping.ColumnMapping {
	var candidates []suggestion
	for i, h := range headers {
		lower := strings.ToLower(strings.Join(strings.Fields(h), " "))
		if lower == "" {
			continue
		}
		for _, idx := range headerMatcher.MatchThreadSafe([]byte(lower)) {
			a := aliases[idx]
			score := len(a.text)
			if lower == a.text {
				score += 1000
			}
			candidates = append(candidates, suggestion{header: i, field: a.field, score: score})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].header < candidates[j].header
	})

	out := mapping.ColumnMapping{}
	usedHeaders := make(map[int]bool)
	for _, c := range candidates {
		if _, taken := out[c.field]; taken || usedHeaders[c.header] {
			continue
		}
		out[c.field] = headers[c.header]
		usedHeaders[c.header] = true
	}
	return out
}
