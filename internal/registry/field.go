package registry

import "github.com/sells-group/program-extract/internal/model"

// Field ids of the built-in clinical program registry.
const (
	FieldName          = "name"
	FieldAddress       = "address"
	FieldPhone         = "phone"
	FieldEmail         = "email"
	FieldWebsite       = "website"
	FieldLevelsOfCare  = "levelsOfCare"
	FieldPopulation    = "population"
	FieldModalities    = "modalities"
	FieldInsurance     = "insurance"
	FieldCapacity      = "capacity"
	FieldAccreditation = "accreditation"
	FieldStaff         = "staff"
	FieldAmenities     = "amenities"
)

// DefaultFields returns the built-in clinical program fields.
func DefaultFields() []model.Field {
	return []model.Field{
		{
			ID: FieldName, Cardinality: model.Single, Importance: 1.0,
			Keywords: []string{"welcome", "about", "center", "recovery", "treatment", "name"},
		},
		{
			ID: FieldAddress, Cardinality: model.Single, Importance: 1.0,
			Keywords: []string{"address", "location", "located", "visit", "directions", "street", "suite"},
		},
		{
			ID: FieldPhone, Cardinality: model.Single, Importance: 1.0,
			Keywords: []string{"call", "phone", "tel", "contact", "hotline", "reach"},
		},
		{
			ID: FieldEmail, Cardinality: model.Single, Importance: 0.9,
			Keywords: []string{"email", "e-mail", "contact", "write"},
		},
		{
			ID: FieldWebsite, Cardinality: model.Single, Importance: 0.8,
			Keywords: []string{"website", "visit", "www", "online"},
		},
		{
			ID: FieldLevelsOfCare, Cardinality: model.Multi, Importance: 0.9,
			Keywords: []string{"level", "care", "program", "treatment", "services", "offer"},
			Vocabulary: []model.Term{
				{Canonical: "Detox", Aliases: []string{"detoxification", "medical detox", "medically supervised detox", "withdrawal management"}},
				{Canonical: "Residential", Aliases: []string{"residential treatment", "inpatient rehab"}},
				{Canonical: "Inpatient", Aliases: []string{"inpatient hospitalization"}},
				{Canonical: "PHP", Aliases: []string{"partial hospitalization", "partial hospitalization program", "day treatment"}},
				{Canonical: "IOP", Aliases: []string{"intensive outpatient", "intensive outpatient program"}},
				{Canonical: "Outpatient", Aliases: []string{"outpatient program", "outpatient services"}},
				{Canonical: "Sober Living", Aliases: []string{"transitional living", "recovery residence"}},
				{Canonical: "Aftercare", Aliases: []string{"alumni program", "continuing care"}},
			},
		},
		{
			ID: FieldPopulation, Cardinality: model.Multi, Importance: 0.8,
			Keywords: []string{"serve", "population", "who we treat", "clients", "ages", "specialize"},
			Vocabulary: []model.Term{
				{Canonical: "Adults", Aliases: []string{"adult"}},
				{Canonical: "Adolescents", Aliases: []string{"adolescent", "teens", "teenagers"}},
				{Canonical: "Young Adults", Aliases: []string{"young adult"}},
				{Canonical: "Men", Aliases: []string{"men only", "male"}},
				{Canonical: "Women", Aliases: []string{"women only", "female"}},
				{Canonical: "Veterans", Aliases: []string{"veteran", "military"}},
				{Canonical: "LGBTQ+", Aliases: []string{"lgbtq", "lgbt"}},
				{Canonical: "Professionals", Aliases: []string{"executives", "executive"}},
				{Canonical: "Seniors", Aliases: []string{"older adults"}},
				{Canonical: "First Responders", Aliases: []string{"first responder"}},
			},
		},
		{
			ID: FieldModalities, Cardinality: model.Multi, Importance: 0.8,
			Keywords: []string{"therapy", "therapies", "modalities", "approach", "evidence-based", "treatment"},
			Vocabulary: []model.Term{
				{Canonical: "CBT", Aliases: []string{"cognitive behavioral therapy", "cognitive-behavioral therapy"}},
				{Canonical: "DBT", Aliases: []string{"dialectical behavior therapy"}},
				{Canonical: "EMDR", Aliases: []string{"eye movement desensitization"}},
				{Canonical: "MAT", Aliases: []string{"medication-assisted treatment", "medication assisted treatment"}},
				{Canonical: "12-Step", Aliases: []string{"12 step", "twelve step"}},
				{Canonical: "Motivational Interviewing"},
				{Canonical: "Family Therapy"},
				{Canonical: "Group Therapy"},
				{Canonical: "Individual Therapy", Aliases: []string{"individual counseling"}},
				{Canonical: "Trauma-Informed Care", Aliases: []string{"trauma-informed", "trauma informed"}},
				{Canonical: "Experiential Therapy"},
				{Canonical: "Art Therapy"},
				{Canonical: "Equine Therapy"},
				{Canonical: "Mindfulness"},
			},
		},
		{
			ID: FieldInsurance, Cardinality: model.Multi, Importance: 0.9,
			Keywords: []string{"insurance", "accept", "coverage", "in-network", "payment", "plans"},
			Vocabulary: []model.Term{
				{Canonical: "Aetna"},
				{Canonical: "Cigna"},
				{Canonical: "Blue Cross Blue Shield", Aliases: []string{"bcbs", "blue cross", "blue shield"}},
				{Canonical: "UnitedHealthcare", Aliases: []string{"united healthcare", "uhc"}},
				{Canonical: "Humana"},
				{Canonical: "Kaiser Permanente", Aliases: []string{"kaiser"}},
				{Canonical: "Medicare"},
				{Canonical: "Medicaid"},
				{Canonical: "Tricare"},
				{Canonical: "Magellan"},
				{Canonical: "Optum"},
				{Canonical: "Anthem"},
				{Canonical: "Beacon Health Options", Aliases: []string{"beacon"}},
				{Canonical: "Private Pay", Aliases: []string{"self pay", "self-pay", "cash pay"}},
			},
		},
		{
			ID: FieldCapacity, Cardinality: model.Single, Importance: 0.7,
			Keywords: []string{"beds", "capacity", "clients", "residents", "patients", "small"},
		},
		{
			ID: FieldAccreditation, Cardinality: model.Multi, Importance: 0.7,
			Keywords: []string{"accredited", "accreditation", "licensed", "certified", "member"},
			Vocabulary: []model.Term{
				{Canonical: "Joint Commission", Aliases: []string{"jcaho", "the joint commission", "gold seal"}},
				{Canonical: "CARF"},
				{Canonical: "LegitScript"},
				{Canonical: "NAATP"},
				{Canonical: "State Licensed", Aliases: []string{"licensed by the state", "state-licensed"}},
			},
		},
		{
			ID: FieldStaff, Cardinality: model.Multi, Importance: 0.7,
			Keywords: []string{"staff", "team", "clinicians", "licensed", "our team"},
			Vocabulary: []model.Term{
				{Canonical: "Psychiatrist", Aliases: []string{"psychiatrists"}},
				{Canonical: "Psychologist", Aliases: []string{"psychologists"}},
				{Canonical: "Therapist", Aliases: []string{"therapists"}},
				{Canonical: "Nurse", Aliases: []string{"nurses", "nursing staff"}},
				{Canonical: "LCSW"},
				{Canonical: "LMHC"},
				{Canonical: "Case Manager", Aliases: []string{"case managers", "case management"}},
				{Canonical: "Medical Director"},
				{Canonical: "Counselor", Aliases: []string{"counselors"}},
			},
		},
		{
			ID: FieldAmenities, Cardinality: model.Multi, Importance: 0.6,
			Keywords: []string{"amenities", "facility", "features", "enjoy", "campus"},
			Vocabulary: []model.Term{
				{Canonical: "Pool", Aliases: []string{"swimming pool"}},
				{Canonical: "Fitness Center", Aliases: []string{"gym", "fitness"}},
				{Canonical: "Private Rooms", Aliases: []string{"private room"}},
				{Canonical: "Chef-Prepared Meals", Aliases: []string{"private chef", "chef"}},
				{Canonical: "Yoga"},
				{Canonical: "Massage"},
				{Canonical: "Beach Access", Aliases: []string{"beach"}},
			},
		},
	}
}

// Default returns the built-in registry.
func Default() *model.FieldRegistry {
	return model.NewFieldRegistry(DefaultFields())
}
