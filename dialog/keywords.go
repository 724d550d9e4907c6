package dialog

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// KeywordSets holds the Spanish keyword and synonym sets the router matches
// by substring. A YAML file may override any individual set.
type KeywordSets struct {
	Greetings []string            `yaml:"greetings"`
	Farewells []string            `yaml:"farewells"`
	Thanks    []string            `yaml:"thanks"`
	Menu      []string            `yaml:"menu"`
	History   []string            `yaml:"history"`
	Register  []string            `yaml:"register"`
	Family    []string            `yaml:"family"`
	Synonyms  map[string][]string `yaml:"synonyms"`
}

func DefaultKeywords() *KeywordSets {
	return &KeywordSets{
		Greetings: []string{
			"hola", "buenos días", "buenas tardes", "buenas noches", "hey", "hi",
			"que tal", "qué tal", "como estas", "cómo estás", "saludos", "buenas",
			"inicio", "menu", "menú", "empezar", "start",
		},
		Farewells: []string{
			"chao", "adiós", "adios", "hasta luego", "nos vemos", "bye",
		},
		Thanks: []string{"gracias", "muchas gracias", "mil gracias", "se agradece"},
		Menu:   []string{"menu", "menú", "ayuda", "help", "opciones"},
		History: []string{
			"historial", "historia", "registro", "expediente", "mis datos",
			"mi información", "documentos", "muestrame", "muéstrame", "archivos",
			"mis documentos", "mis archivos",
		},
		Register: []string{"registrar", "agregar", "anotar", "nueva consulta"},
		Family:   []string{"familiares", "familia", "autorizar", "permisos"},
		Synonyms: map[string][]string{
			"consulta":    {"consulta", "cita", "médico", "doctor", "visita médica"},
			"medicamento": {"medicamento", "medicina", "pastilla", "fármaco", "remedio", "tratamiento"},
			"examen":      {"examen", "análisis", "estudio", "prueba", "laboratorio"},
		},
	}
}

// LoadKeywords returns the defaults overlaid with any sets present in the
// YAML file at path. An empty path means defaults only.
func LoadKeywords(path string) (*KeywordSets, error) {
	sets := DefaultKeywords()
	if strings.TrimSpace(path) == "" {
		return sets, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keywords file: %w", err)
	}
	var override KeywordSets
	if err := yaml.Unmarshal(raw, &override); err != nil {
		return nil, fmt.Errorf("parse keywords file %s: %w", path, err)
	}
	if len(override.Greetings) > 0 {
		sets.Greetings = override.Greetings
	}
	if len(override.Farewells) > 0 {
		sets.Farewells = override.Farewells
	}
	if len(override.Thanks) > 0 {
		sets.Thanks = override.Thanks
	}
	if len(override.Menu) > 0 {
		sets.Menu = override.Menu
	}
	if len(override.History) > 0 {
		sets.History = override.History
	}
	if len(override.Register) > 0 {
		sets.Register = override.Register
	}
	if len(override.Family) > 0 {
		sets.Family = override.Family
	}
	for kind, words := range override.Synonyms {
		sets.Synonyms[kind] = words
	}
	return sets, nil
}

// matchAny reports whether any keyword of the set occurs in the lowercased
// text.
func matchAny(text string, set []string) bool {
	for _, word := range set {
		if strings.Contains(text, word) {
			return true
		}
	}
	return false
}
