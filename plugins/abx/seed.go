package abx

// ClassNames are the antibiotic classes created on install, in creation order.
var ClassNames = []string{
	"Aminoglycosides",
	"Carbapenems",
	"Cephalosporins",
	"Fluoroquinolones",
	"Macrolides",
	"Monobactams",
	"Penicillins",
	"Tetracyclines",
	"Other",
}

// SeedAntibiotic is one row of the default antibiotics table.
type SeedAntibiotic struct {
	Name         string
	Abbreviation string
	Class        string
}

// SeedAntibiotics are the default antibiotics created by SetupAntibiotics.
// The values match existing deployments and must not be edited.
var SeedAntibiotics = []SeedAntibiotic{
	{"Penicillin", "P", "Penicillins"},
	{"Oxacillin", "Ox", "Penicillins"},
	{"Ampicillin", "Am", "Penicillins"},
	{"Ampicillin Sulbactam", "Ams", "Penicillins"},
	{"Piperacillin", "Pi", "Penicillins"},

	{"Cefazolin", "Cfz", "Cephalosporins"},
	{"Ceftriaxone", "Cax", "Cephalosporins"},
	{"Cefepime", "Pime", "Cephalosporins"},
	{"Cefuroxime", "Cxm", "Cephalosporins"},
	{"Cefotaxime", "Cft", "Cephalosporins"},
	{"Ceftazidime", "Caz", "Cephalosporins"},

	{"Ciprofloxacin", "Cp", "Fluoroquinolones"},
	{"Levofloxacin", "Levo", "Fluoroquinolones"},
	{"Moxifloxacin", "Mox", "Fluoroquinolones"},

	{"Amikacin", "Amk", "Aminoglycosides"},
	{"Gentamicin", "Gm", "Aminoglycosides"},
	{"Tobramycin", "To", "Aminoglycosides"},

	{"Aztreonam", "Azt", "Monobactams"},

	{"Ertapenem", "Ert", "Carbapenems"},
	{"Imienem", "Imp", "Carbapenems"},
	{"Meropenem", "Mer", "Carbapenems"},

	{"Azithromycin", "Azi", "Macrolides"},
	{"Clarithromycin", "Cla", "Macrolides"},
	{"Erythromycin", "E", "Macrolides"},
	{"Clindamycin", "Cdm", "Macrolides"},

	{"Vancomycin", "Va", "Other"},
	{"Rifampin", "Rif", "Other"},
	{"Linezolid", "Lzd", "Other"},
	{"Tetracycline", "Te", "Other"},
	{"Trimethoprim", "Ts", "Other"},
}
