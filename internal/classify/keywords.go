package classify

// Keyword tables for quick scoring and classification. All entries are in
// folded form (lowercase, no diacritics); inputs must pass through Fold
// before matching. Weights and membership are tunable policy, not contract.

// rejectionKeywords mark a tender as definitively non-medical. A match in
// the organization name rejects outright; two or more matches in the free
// text reject as well.
var rejectionKeywords = []string{
	"educacao", "escola", "ensino",
	"transporte", "onibus", "veiculo",
	"obras", "pavimentacao", "asfalto",
	"saneamento", "esgoto", "agua",
	"iluminacao", "luminaria",
	"informatica", "computador", "notebook",
	"mobiliario escolar",
	"merenda", "alimentacao escolar",
	"uniforme escolar", "fardamento",
	"combustivel", "gasolina", "diesel",
	"material de limpeza", "produto de limpeza",
}

// orgKeywordWeights score the buying organization's name.
var orgKeywordWeights = map[string]int{
	"hospital":            30,
	"saude":               25,
	"santa casa":          25,
	"hemocentro":          25,
	"hemoderivados":       25,
	"sus":                 20,
	"clinica":             20,
	"upa":                 20,
	"samu":                20,
	"maternidade":         20,
	"policlinica":         20,
	"pronto socorro":      20,
	"pronto-socorro":      20,
	"vigilancia sanitaria": 20,
	"ambulatorio":         15,
	"posto de saude":      15,
}

// objectKeywordWeights score the tender title and description.
var objectKeywordWeights = map[string]int{
	"medicamento":         25,
	"curativo":            25,
	"material medico":     25,
	"material hospitalar": 25,
	"medico":              20,
	"hospitalar":          20,
	"cirurgico":           20,
	"seringa":             20,
	"cateter":             20,
	"equipo":              20,
	"material penso":      20,
	"insumo medico":       20,
	"equipamento medico":  20,
	"laboratorio":         15,
	"gaze":                15,
	"luva":                10,
	"mascara":             10,
}

// strongKeywords are highly indicative terms counted for Stage 3 phase 1
// auto-approval.
var strongKeywords = []string{
	"medicamento", "remedio", "farmaco",
	"hospitalar", "hospital",
	"cirurgico", "cirurgia",
	"medico",
	"laboratorio", "exame",
	"equipamento medico", "material medico",
	"curativo", "seringa", "cateter", "equipo",
	"diagnostico",
	"tratamento", "terapia",
	"ambulancia",
	"insumo medico", "insumo hospitalar",
	"material cirurgico",
	"uti", "centro cirurgico",
	"pronto socorro", "pronto-socorro",
	"radiologia", "tomografia", "raio-x",
	"anestesia", "anestesico",
}

// sampleItemKeywords match individual item descriptions during Stage 3
// confirmatory sampling.
var sampleItemKeywords = []string{
	"curativo", "seringa", "agulha", "cateter",
	"equipo", "luva", "mascara", "gaze",
	"medicamento", "cirurgico", "esteril",
}

// Classification keyword sets (government level and organization type).
var federalKeywords = []string{
	"ministerio", "governo federal", "uniao", "presidencia",
	"anvisa", "vigilancia sanitaria nacional",
	"sus", "ministerio da saude",
	"fiocruz", "fundacao oswaldo cruz",
	"inca", "instituto nacional",
	"funasa", "hemobras",
	"hospital federal", "centro nacional",
	"universidade federal", "hospital universitario federal",
}

var stateKeywords = []string{
	"governo do estado", "secretaria de estado",
	"estado de", "governo estadual",
	"secretaria estadual de saude", "secretaria de saude do estado",
	"saude estadual",
	"hospital do estado", "hospital estadual",
	"centro estadual", "instituto estadual",
	"universidade estadual", "hospital universitario estadual",
}

var municipalKeywords = []string{
	"municipio", "prefeitura", "camara municipal", "governo municipal",
	"secretaria municipal de saude", "saude municipal",
	"hospital municipal",
	"upa", "unidade de pronto atendimento",
	"posto de saude", "centro de saude municipal",
	"policlinica municipal",
}

var hospitalKeywords = []string{
	"hospital", "nosocomial", "hospitalar",
	"clinica", "maternidade",
	"santa casa", "irmandade",
	"instituto do coracao", "instituto do cancer",
	"centro medico", "complexo hospitalar",
	"hospital de base", "hospital regional",
}

var healthSecretariatKeywords = []string{
	"secretaria de saude", "secretaria da saude",
	"vigilancia sanitaria", "vigilancia epidemiologica",
	"centro de controle", "fundacao de saude",
}

var universityKeywords = []string{
	"universidade", "faculdade",
	"instituto federal", "centro universitario", "escola superior",
}

var militaryKeywords = []string{
	"exercito", "marinha", "aeronautica", "militar",
	"comando", "quartel",
	"hospital militar", "policlinica militar",
}

// medicalKeywords is the broad relevance list used by the full classifier.
var medicalKeywords = []string{
	"curativo", "atadura", "bandagem", "gaze", "compressa",
	"esparadrapo", "fita adesiva", "filme transparente", "hidrocoloide",
	"alginato", "borda adesiva", "fenestrado",
	"cateter", "scalp", "jelco", "agulha", "equipo", "soro",
	"acesso venoso", "puncao", "fixacao iv",
	"cirurgico", "cirurgia", "campo cirurgico", "avental cirurgico",
	"luva cirurgica", "mascara cirurgica", "capote", "prope",
	"bisturi", "pinca", "tesoura cirurgica",
	"esteril", "esterilizacao", "descartavel", "uso unico",
	"antisseptico", "asseptico", "autoclavavel",
	"seringa", "algodao", "luva", "mascara", "avental", "touca",
	"sonda", "tubo", "dreno", "canula",
	"equipamento medico", "aparelho medico", "instrumental medico",
	"material medico", "insumo medico", "material hospitalar",
	"material de consumo",
	"monitor", "oximetro", "termometro", "esfigmomanometro", "estetoscopio",
	"raio-x", "ultrassom", "tomografia", "ressonancia",
	"laboratorio", "analise clinica", "coleta", "reagente", "vidraria", "pipeta",
	"ferida", "lesao", "ulcera", "queimadura", "cicatrizacao", "desbridamento",
	"tratamento", "terapia", "procedimento", "assepsia", "antissepsia",
	"cardiologia", "oncologia", "pediatria", "ginecologia",
	"emergencia", "pronto-socorro", "uti", "unidade de terapia intensiva",
	"centro cirurgico", "bloco cirurgico", "enfermaria", "ambulatorio",
	"saude", "medicina", "enfermagem", "farmacia",
	"diagnostico", "paciente", "hospitalar", "clinico",
}

// highRelevanceKeywords target the distributor's core product lines (wound
// care and IV fixation) and carry extra weight in relevance scoring.
var highRelevanceKeywords = []string{
	"curativo transparente", "filme transparente",
	"curativo iv", "fixacao iv",
	"fenestrado", "borda adesiva", "protectfilm",
	"cateter iv", "cateter intravenoso",
	"scalp", "jelco", "acesso venoso", "fixacao de cateter",
	"estabilizacao",
	"curativo esteril", "curativo cirurgico", "curativo com borda",
	"filme de poliuretano",
	"hipoalergenico", "impermeavel", "permeavel", "nao aderente",
	"curativo", "bandagem", "intravenoso",
	"transparente", "adesivo", "cirurgico", "esteril",
}
