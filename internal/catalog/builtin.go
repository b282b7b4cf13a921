package catalog

// BuiltinVersion identifies the compiled-in data set.
const BuiltinVersion = "2024.1"

var builtinEntries = []Entry{
	{
		ID:              "rose",
		Name:            "Rose",
		Category:        CategoryPlant,
		Description:     "A flowering plant with thorny stems and colorful petals",
		Characteristics: []string{"petals", "thorns", "green stem", "flowers", "organic texture"},
		BaseConfidence:  0.92,
		Image:           "rose.jpg",
	},
	{
		ID:              "sunflower",
		Name:            "Sunflower",
		Category:        CategoryPlant,
		Description:     "A tall plant with large yellow flower head and green leaves",
		Characteristics: []string{"yellow petals", "large flower", "green stem", "leaves", "natural pattern"},
		BaseConfidence:  0.88,
		Image:           "sunflower.jpg",
	},
	{
		ID:              "tulip",
		Name:            "Tulip",
		Category:        CategoryPlant,
		Description:     "A spring-flowering plant with cup-shaped colorful flowers",
		Characteristics: []string{"cup-shaped", "colorful petals", "smooth stem", "green leaves", "symmetrical"},
		BaseConfidence:  0.85,
		Image:           "tulip.jpg",
	},
	{
		ID:              "fern",
		Name:            "Fern",
		Category:        CategoryPlant,
		Description:     "A leafy plant with feathery, delicate fronds",
		Characteristics: []string{"feathery leaves", "green fronds", "organic pattern", "delicate", "natural texture"},
		BaseConfidence:  0.9,
		Image:           "fern.jpg",
	},
	{
		ID:              "lavender",
		Name:            "Lavender",
		Category:        CategoryPlant,
		Description:     "A fragrant plant with purple flower spikes and narrow leaves",
		Characteristics: []string{"purple flowers", "spike pattern", "narrow leaves", "fragrant", "organic growth"},
		BaseConfidence:  0.89,
		Image:           "lavender.jpg",
	},
	{
		ID:              "rock",
		Name:            "Rock",
		Category:        CategoryNonPlant,
		Description:     "A natural stone or mineral formation",
		Characteristics: []string{"hard surface", "gray/brown color", "rough texture", "no organic features", "mineral"},
		BaseConfidence:  0.94,
		Image:           "rock.jpg",
	},
	{
		ID:              "metal-can",
		Name:            "Metal Can",
		Category:        CategoryNonPlant,
		Description:     "An aluminum or steel beverage container",
		Characteristics: []string{"metallic", "cylindrical", "smooth surface", "reflective", "manufactured"},
		BaseConfidence:  0.96,
		Image:           "metal-can.jpg",
	},
	{
		ID:              "plastic-bottle",
		Name:            "Plastic Bottle",
		Category:        CategoryNonPlant,
		Description:     "A plastic container for liquids",
		Characteristics: []string{"transparent/translucent", "smooth plastic", "cylindrical", "manufactured", "synthetic"},
		BaseConfidence:  0.93,
		Image:           "plastic-bottle.jpg",
	},
	{
		ID:              "wood-block",
		Name:            "Wood Block",
		Category:        CategoryNonPlant,
		Description:     "A cut piece of wood or wooden cube",
		Characteristics: []string{"wood grain", "rectangular", "hard surface", "brown/tan color", "processed"},
		BaseConfidence:  0.91,
		Image:           "wood-block.jpg",
	},
	{
		ID:              "ceramic-pot",
		Name:            "Ceramic Pot",
		Category:        CategoryNonPlant,
		Description:     "A clay or ceramic container",
		Characteristics: []string{"ceramic texture", "rounded shape", "porous surface", "manufactured", "earthy color"},
		BaseConfidence:  0.92,
		Image:           "ceramic-pot.jpg",
	},
}

// Builtin returns the compiled-in catalog.
func Builtin() *Catalog {
	c, err := New(BuiltinVersion, builtinEntries)
	if err != nil {
		panic(err)
	}
	return c
}
