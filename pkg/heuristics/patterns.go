package heuristics

import "regexp"

// Pattern family drives the category reported on a harmful match.
type family string

const (
	familySexual   family = "sexual"
	familyViolence family = "violence"
	familyBullying family = "bullying"
)

type harmfulPattern struct {
	re     *regexp.Regexp
	family family
}

// harmfulPatterns are evaluated first and always win: a direct proposition,
// solicitation, threat or insult is blocked no matter what context surrounds
// it. Patterns cover Finnish and English, matched against normalized text.
var harmfulPatterns = []harmfulPattern{
	// Direct sexual propositions.
	{regexp.MustCompile(`(haluu?t?ko|haluisi?tko|wanna|want to|lets|let's).*(seksi|sex|pano|panna|fuck|naida)`), familySexual},
	{regexp.MustCompile(`(harrastetaan|harrastettais)\s+seksi`), familySexual},
	// Image and nudity solicitation.
	{regexp.MustCompile(`(lähetä|laita|näytä).*(alaston|nakukuv|tissi|kuva itsestä)`), familySexual},
	{regexp.MustCompile(`send\s+(me\s+)?(a\s+)?(nudes?|naked|nude pic)`), familySexual},
	{regexp.MustCompile(`show\s+(me\s+)?(your\s+)?(boobs|tits|dick)`), familySexual},
	// Direct threats.
	{regexp.MustCompile(`(tapan\s+su|tapan\s+sinut|hakkaan\s+su|vedän\s+sua\s+turpaan|listin\s+su)`), familyViolence},
	{regexp.MustCompile(`(i\s*('|’)?ll|i\s+will|gonna)\s+(kill|hurt|beat|stab)\s+(you|u)`), familyViolence},
	{regexp.MustCompile(`etsin\s+sut\s+käsiini`), familyViolence},
	// Explicit insults and bullying.
	{regexp.MustCompile(`(oo?t|olet|sä\s+oot)\s+(ihan\s+)?(ruma|läski|tyhmä|vitun|paska|surkea|säälittävä)`), familyBullying},
	{regexp.MustCompile(`(you\s*('|’)?re|you are|ur)\s+(so\s+)?(ugly|fat|stupid|worthless|pathetic)`), familyBullying},
	{regexp.MustCompile(`(kukaan\s+ei\s+(tykkää|pidä|välitä)\s+su|nobody\s+likes\s+(you|u)|no one\s+likes\s+(you|u))`), familyBullying},
	{regexp.MustCompile(`(tapa\s+it[st]es|kill\s+yourself|kys\b)`), familyBullying},
}

// sexualTerms feed step two of the analyzer. Obfuscation variants are covered
// by character-substitution normalization before matching, so only the plain
// spellings are listed.
var sexualTerms = []string{
	"seksi",
	"sex",
	"porno",
	"porn",
	"alaston",
	"nakukuva",
	"nude",
	"tissit",
	"penis",
	"vagina",
	"pillu",
	"kyrpä",
	"masturboi",
	"masturbat",
	"orgasmi",
	"yhdyntä",
	"kiihottaa",
	"kiimainen",
	"horny",
	"boobs",
	"dick",
}

// allowedContextPatterns rescue messages that mention sexual terminology in
// an educational, reflective or peer-question framing.
var allowedContextPatterns = []*regexp.Regexp{
	// Educational framing.
	regexp.MustCompile(`(opettaja|terkkari|teacher|nurse).*(kertoi|puhui|selitti|sanoi|opetti|explained|told|talked|taught)`),
	regexp.MustCompile(`(terveystie|biolog|health class|sex ed|koulussa|tunnilla|at school|in class)`),
	// Explicit questions about meaning.
	regexp.MustCompile(`(mitä|mikä).*(tarkoittaa|meinaa)`),
	regexp.MustCompile(`what\s+(does|do).*mean`),
	// First-person experience narrated as reflection.
	regexp.MustCompile(`(oon|olen|oisin)\s+(miettiny|miettinyt|pohtinu|pohtinut|lukenut)`),
	regexp.MustCompile(`i\s*('|’)?(ve|have)\s+been\s+(thinking|wondering|reading)`),
	regexp.MustCompile(`i\s+wonder`),
	// Questions to peers.
	regexp.MustCompile(`(onko\s+(muilla|muillakin|kellään|teillä)|ootteko\s+(muut|te))`),
	regexp.MustCompile(`(does|has|do)\s+(anyone|anybody)`),
}
