package complaint

const systemPrompt = `You are an agent of the Downside Up complaint department. Follow the requested response format exactly.`

const intakePrompt = `Categorize this Downside Up complaint. A complaint may belong to several categories:
- portal: portal timing, location, or behavior
- monster: creature behavior (demogorgons and the like)
- psychic: psychic abilities or their limits
- environmental: electricity, weather, or the physical environment
- other: anything else

Complaint: {{.complaint}}

Respond with ONLY the matching category names separated by commas.`

const validationPrompt = `You are validating a Downside Up complaint for the "{{.category}}" category.

Rule for "{{.category}}":
{{.rule}}

Complaint: {{.complaint}}

Does the complaint carry enough specific detail to satisfy the rule?
Answer VALID or REJECT on the first line, then give a brief reason on the next line.`

var validationRules = map[string]string{
	CategoryPortal:        "Valid ONLY if it references a specific location or timing anomaly related to portals.",
	CategoryMonster:       "Valid ONLY if it describes specific creature behavior or interactions.",
	CategoryPsychic:       "Valid ONLY if it references specific ability limitations or malfunctions.",
	CategoryEnvironmental: "Valid ONLY if it connects to electricity, weather, or observable physical phenomena.",
}

const investigationPrompt = `You are investigating a validated Downside Up complaint in the "{{.category}}" category.

Protocol: {{.protocol}}

Complaint: {{.complaint}}

Write a structured report:

EVIDENCE GATHERED:
- key evidence points

ANALYSIS:
brief analysis of the evidence

CONCLUSION:
the finding that should inform the resolution`

var investigationProtocols = map[string]string{
	CategoryPortal:        "establish temporal patterns, location consistency, and the environmental conditions around portal activity.",
	CategoryMonster:       "gather behavioral data, interaction patterns, and the triggers that provoke or calm the creature.",
	CategoryPsychic:       "document the affected abilities, the tested limitations, and when or where the issues occur.",
	CategoryEnvironmental: "analyze power line activity, atmospheric conditions, and how the anomalies correlate.",
}

const resolutionPrompt = `You are resolving a Downside Up complaint investigated under the categories: {{.categories}}.

Investigation findings:
{{range .findings}}
[{{.Category}}]
{{.Findings}}
{{end}}
Original complaint: {{.complaint}}

Rules:
1. Address every investigated category.
2. Cite established Downside Up procedures (for example "Per Downside Up Protocol DU-XXX").
3. For environmental or monster findings decide whether a specialised team must take over (Hawkins Environmental Response Unit or Creature Containment Division).
4. Predict the effectiveness of the resolution: HIGH, MEDIUM, or LOW.

Respond EXACTLY as:

RESOLUTION:
the resolution

ESCALATION: YES or NO

EFFECTIVENESS: HIGH, MEDIUM, or LOW`

const satisfactionPrompt = `You are a Downside Up closure agent verifying customer satisfaction.

Original complaint: {{.complaint}}
Categories: {{.categories}}
Resolution applied: {{.resolution}}

Does the resolution adequately address the complaint?
Answer SATISFIED or UNSATISFIED on the first line, then give a brief explanation on the next line.`
