package worlds

import "strings"

type ModuleType string

const (
	ModuleDiscovery  ModuleType = "discovery"
	ModuleKnowledge  ModuleType = "knowledge"
	ModulePractice   ModuleType = "practice"
	ModuleReflection ModuleType = "reflection"
	ModuleChallenge  ModuleType = "challenge"
)

// DefaultModuleType is used for anything the model returns outside the enum.
const DefaultModuleType = ModuleKnowledge

var ModuleTypes = []ModuleType{
	ModuleDiscovery,
	ModuleKnowledge,
	ModulePractice,
	ModuleReflection,
	ModuleChallenge,
}

var moduleTypeAliases = map[string]ModuleType{
	"discovery":       ModuleDiscovery,
	"discover":        ModuleDiscovery,
	"explore":         ModuleDiscovery,
	"exploration":     ModuleDiscovery,
	"intro":           ModuleDiscovery,
	"introduction":    ModuleDiscovery,
	"entdeckung":      ModuleDiscovery,
	"entdecken":       ModuleDiscovery,
	"einfuehrung":     ModuleDiscovery,
	"einführung":      ModuleDiscovery,
	"knowledge":       ModuleKnowledge,
	"learn":           ModuleKnowledge,
	"lesson":          ModuleKnowledge,
	"theory":          ModuleKnowledge,
	"text":            ModuleKnowledge,
	"info":            ModuleKnowledge,
	"information":     ModuleKnowledge,
	"wissen":          ModuleKnowledge,
	"practice":        ModulePractice,
	"practise":        ModulePractice,
	"exercise":        ModulePractice,
	"drill":           ModulePractice,
	"quiz":            ModulePractice,
	"fill_blank":      ModulePractice,
	"fill_in_blank":   ModulePractice,
	"matching":        ModulePractice,
	"uebung":          ModulePractice,
	"übung":           ModulePractice,
	"reflection":      ModuleReflection,
	"reflect":         ModuleReflection,
	"review":          ModuleReflection,
	"recap":           ModuleReflection,
	"summary":         ModuleReflection,
	"reflexion":       ModuleReflection,
	"rueckblick":      ModuleReflection,
	"rückblick":       ModuleReflection,
	"challenge":       ModuleChallenge,
	"test":            ModuleChallenge,
	"exam":            ModuleChallenge,
	"assessment":      ModuleChallenge,
	"boss":            ModuleChallenge,
	"final":           ModuleChallenge,
	"herausforderung": ModuleChallenge,
}

// CoerceModuleType maps any model-produced label onto the enum. It never fails.
func CoerceModuleType(raw string) ModuleType {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.NewReplacer("-", "_", " ", "_").Replace(key)
	if mt, ok := moduleTypeAliases[key]; ok {
		return mt
	}
	return DefaultModuleType
}

func (m ModuleType) Valid() bool {
	for _, known := range ModuleTypes {
		if m == known {
			return true
		}
	}
	return false
}
