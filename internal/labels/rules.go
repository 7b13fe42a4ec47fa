package labels

// contextRules maps a raw detector class to the contextual labels it implies.
// Class names follow the COCO-80 vocabulary.
var contextRules = map[string][]string{
	"person": {"people", "portrait"},

	"dog": {"pet", "animal"},
	"cat": {"pet", "animal"},

	"bird":     {"animal", "wildlife"},
	"horse":    {"animal"},
	"sheep":    {"animal", "farm"},
	"cow":      {"animal", "farm"},
	"elephant": {"animal", "wildlife"},
	"bear":     {"animal", "wildlife"},
	"zebra":    {"animal", "wildlife"},
	"giraffe":  {"animal", "wildlife"},

	"bicycle":    {"vehicle", "transportation"},
	"car":        {"vehicle", "transportation"},
	"motorcycle": {"vehicle", "transportation"},
	"airplane":   {"vehicle", "transportation", "travel"},
	"bus":        {"vehicle", "transportation"},
	"train":      {"vehicle", "transportation", "travel"},
	"truck":      {"vehicle", "transportation"},
	"boat":       {"vehicle", "transportation", "water"},

	"banana":   {"food", "fruit"},
	"apple":    {"food", "fruit"},
	"orange":   {"food", "fruit"},
	"sandwich": {"food"},
	"broccoli": {"food", "vegetable"},
	"carrot":   {"food", "vegetable"},
	"hot dog":  {"food"},
	"pizza":    {"food"},
	"donut":    {"food", "dessert"},
	"cake":     {"food", "dessert", "celebration"},

	"wine glass":   {"drinks", "dining"},
	"cup":          {"drinks"},
	"bottle":       {"drinks"},
	"fork":         {"dining"},
	"knife":        {"dining"},
	"spoon":        {"dining"},
	"bowl":         {"dining"},
	"dining table": {"indoor", "furniture", "dining"},

	"chair":  {"indoor", "furniture"},
	"couch":  {"indoor", "furniture"},
	"bed":    {"indoor", "furniture"},
	"toilet": {"indoor"},
	"sink":   {"indoor"},

	"tv":         {"indoor", "electronics"},
	"laptop":     {"indoor", "electronics"},
	"mouse":      {"electronics"},
	"remote":     {"electronics"},
	"keyboard":   {"electronics"},
	"cell phone": {"electronics"},

	"potted plant": {"plant", "nature"},
	"umbrella":     {"outdoor"},
	"bench":        {"outdoor"},

	"surfboard":     {"sports", "beach", "water"},
	"kite":          {"outdoor", "sports"},
	"skis":          {"sports", "snow"},
	"snowboard":     {"sports", "snow"},
	"sports ball":   {"sports"},
	"frisbee":       {"sports", "outdoor"},
	"skateboard":    {"sports"},
	"tennis racket": {"sports"},
	"baseball bat":  {"sports"},
}

const (
	SceneBeach      = "beach"
	SceneMountain   = "mountain"
	SceneBirthday   = "birthday"
	SceneDining     = "dining"
	SceneGroupPhoto = "group_photo"
	ScenePets       = "pets"
	SceneAutomotive = "automotive"
	SceneNature     = "nature"
	SceneGeneral    = "general"
)

// GroupPhotoMinPeople is the number of person detections that makes a group photo.
const GroupPhotoMinPeople = 3

type sceneRule struct {
	scene string
	terms []string
	match func(labels map[string]bool, people int) bool
}

// sceneRules are evaluated in order; the first match wins.
var sceneRules = []sceneRule{
	{scene: SceneBeach, terms: []string{"beach", "surfboard", "ocean", "sea", "sand"}},
	{scene: SceneMountain, terms: []string{"mountain", "hiking", "snow", "skis", "snowboard"}},
	{scene: SceneBirthday, terms: []string{"cake", "candle", "balloon", "party", "celebration"}},
	{scene: SceneDining, terms: []string{"wine glass", "wine", "dinner", "restaurant", "food", "dining"}},
	{scene: SceneGroupPhoto, match: func(_ map[string]bool, people int) bool {
		return people >= GroupPhotoMinPeople
	}},
	{scene: ScenePets, match: func(labels map[string]bool, people int) bool {
		// A pet next to a person is a people photo, not a pet photo.
		return people == 0 && (labels["pet"] || labels["dog"] || labels["cat"])
	}},
	{scene: SceneAutomotive, terms: []string{"vehicle", "car", "truck", "motorcycle", "bus"}},
	{scene: SceneNature, terms: []string{"nature", "plant", "tree", "flower", "wildlife", "bird"}},
}
