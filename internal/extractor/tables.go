package extractor

// Lookup tables for deterministic extraction. All keys are lowercase and
// diacritic-folded; Fold must be applied to query text before lookup.

// regionCodes maps every accepted spelling of a first-level administrative
// region (full name or two-letter abbreviation) to its canonical code.
var regionCodes = map[string]string{
	"acre": "AC", "ac": "AC",
	"alagoas": "AL", "al": "AL",
	"amapa": "AP", "ap": "AP",
	"amazonas": "AM", "am": "AM",
	"bahia": "BA", "ba": "BA",
	"ceara": "CE", "ce": "CE",
	"distrito federal": "DF", "df": "DF",
	"espirito santo": "ES", "es": "ES",
	"goias": "GO", "go": "GO",
	"maranhao": "MA", "ma": "MA",
	"mato grosso": "MT", "mt": "MT",
	"mato grosso do sul": "MS", "ms": "MS",
	"minas gerais": "MG", "mg": "MG",
	"para": "PA", "pa": "PA",
	"paraiba": "PB", "pb": "PB",
	"parana": "PR", "pr": "PR",
	"pernambuco": "PE", "pe": "PE",
	"piaui": "PI", "pi": "PI",
	"rio de janeiro": "RJ", "rj": "RJ",
	"rio grande do norte": "RN", "rn": "RN",
	"rio grande do sul": "RS", "rs": "RS",
	"rondonia": "RO", "ro": "RO",
	"roraima": "RR", "rr": "RR",
	"santa catarina": "SC", "sc": "SC",
	"sao paulo": "SP", "sp": "SP",
	"sergipe": "SE", "se": "SE",
	"tocantins": "TO", "to": "TO",
}

// regionNames lists multi-word and single-word full names longest-first so
// that "mato grosso do sul" wins over "mato grosso".
var regionNames = []string{
	"rio grande do norte",
	"rio grande do sul",
	"mato grosso do sul",
	"rio de janeiro",
	"distrito federal",
	"espirito santo",
	"mato grosso",
	"santa catarina",
	"minas gerais",
	"sao paulo",
	"pernambuco",
	"tocantins",
	"amazonas",
	"maranhao",
	"rondonia",
	"alagoas",
	"roraima",
	"sergipe",
	"parana",
	"paraiba",
	"bahia",
	"ceara",
	"goias",
	"piaui",
	"amapa",
	"para",
	"acre",
}

// magnitudes maps pt-BR magnitude words to powers of ten
var magnitudes = map[string]float64{
	"mil":      1_000,
	"milhao":   1_000_000,
	"milhoes":  1_000_000,
	"bilhao":   1_000_000_000,
	"bilhoes":  1_000_000_000,
	"trilhao":  1_000_000_000_000,
	"trilhoes": 1_000_000_000_000,
}

// categoryKeywords maps canonical spending categories to the keyword sets
// that identify them in free text.
var categoryKeywords = map[string][]string{
	"health": {
		"saude", "hospital", "hospitais", "medicamento", "medicamentos",
		"vacina", "vacinas", "ambulancia", "sus", "upa", "posto de saude",
	},
	"education": {
		"educacao", "escola", "escolas", "ensino", "universidade",
		"universidades", "merenda", "creche", "creches", "professor", "professores",
	},
	"infrastructure": {
		"infraestrutura", "obra", "obras", "pavimentacao", "estrada",
		"estradas", "rodovia", "rodovias", "saneamento", "ponte", "pontes",
		"construcao",
	},
	"security": {
		"seguranca", "policia", "policial", "viatura", "viaturas",
		"armamento", "presidio", "presidios", "bombeiro", "bombeiros",
	},
	"social": {
		"assistencia social", "bolsa familia", "auxilio", "cras",
		"beneficio social", "beneficios sociais",
	},
	"technology": {
		"tecnologia", "software", "informatica", "computador", "computadores",
		"sistema de informacao", "datacenter",
	},
	"environment": {
		"meio ambiente", "ambiental", "desmatamento", "reflorestamento",
		"residuos solidos",
	},
	"agriculture": {
		"agricultura", "agricola", "agropecuaria", "irrigacao", "fertilizante",
		"fertilizantes",
	},
}

// foldRunes strips pt-BR diacritics; anything else passes through
var foldRunes = map[rune]rune{
	'á': 'a', 'à': 'a', 'â': 'a', 'ã': 'a', 'ä': 'a',
	'é': 'e', 'è': 'e', 'ê': 'e', 'ë': 'e',
	'í': 'i', 'ì': 'i', 'î': 'i', 'ï': 'i',
	'ó': 'o', 'ò': 'o', 'ô': 'o', 'õ': 'o', 'ö': 'o',
	'ú': 'u', 'ù': 'u', 'û': 'u', 'ü': 'u',
	'ç': 'c', 'ñ': 'n',
}
