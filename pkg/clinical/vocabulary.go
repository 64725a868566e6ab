package clinical

// Departments.
const (
	DeptEmergency        = "Emergency"
	DeptGeneralMedicine  = "General Medicine"
	DeptCardiology       = "Cardiology"
	DeptPulmonology      = "Pulmonology"
	DeptNeurology        = "Neurology"
	DeptGastroenterology = "Gastroenterology"
	DeptOrthopedics      = "Orthopedics"
	DeptSurgery          = "Surgery"
	DeptDermatology      = "Dermatology"
	DeptENT              = "ENT"
	DeptOphthalmology    = "Ophthalmology"
	DeptUrology          = "Urology"
	DeptRheumatology     = "Rheumatology"
	DeptPediatrics       = "Pediatrics"
	DeptObstetrics       = "Obstetrics & Gynecology"
	DeptPsychiatry       = "Psychiatry"
)

// Departments is the fixed department set, in classifier class order.
var Departments = []string{
	DeptGeneralMedicine, DeptEmergency, DeptCardiology, DeptPulmonology,
	DeptNeurology, DeptGastroenterology, DeptOrthopedics, DeptSurgery,
	DeptDermatology, DeptENT, DeptOphthalmology, DeptUrology, DeptRheumatology,
	DeptPediatrics, DeptObstetrics, DeptPsychiatry,
}

// Symptoms is the default symptom vocabulary, sorted.
var Symptoms = []string{
	"abdominal_pain", "back_pain", "bloating", "blood_in_stool", "blood_in_urine",
	"body_ache", "breathlessness", "chest_congestion", "chest_pain", "confusion",
	"cough", "diarrhea", "dizziness", "fainting", "fatigue", "fever",
	"frequent_urination", "headache", "itching", "joint_pain", "loss_of_appetite",
	"nausea", "numbness", "painful_urination", "palpitations", "rash", "runny_nose",
	"seizures", "skin_lesions", "sore_throat", "speech_difficulty", "swelling",
	"vision_changes", "vomiting", "wheezing",
}

// Conditions is the default pre-existing condition vocabulary, sorted.
var Conditions = []string{
	"anemia", "arthritis", "asthma", "cancer", "copd", "diabetes", "epilepsy",
	"heart_disease", "hiv", "hypertension", "kidney_disease", "liver_disease",
	"obesity", "thyroid_disorder", "tuberculosis",
}

// Gender codes in one-hot order.
const (
	GenderFemale = "F"
	GenderMale   = "M"
	GenderOther  = "OTHER"
)

// Genders lists the gender codes in one-hot order.
var Genders = []string{GenderFemale, GenderMale, GenderOther}

// IsDepartment reports whether name is in the fixed department set.
func IsDepartment(name string) bool {
	for _, d := range Departments {
		if d == name {
			return true
		}
	}
	return false
}
