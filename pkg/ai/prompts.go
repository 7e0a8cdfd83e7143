package ai

// ExtractEventsPrompt asks the extraction model for discrete events in a
// window of transcript turns. Placeholders: call id, allowed event types,
// allowed event types again.
const ExtractEventsPrompt = `
# Task Context
You are an analyst reading a call-center transcript. You will be given a numbered window of speaker turns from call %s.

# Detailed Task Description & Rules
- Identify discrete events: things that happened or were stated to have happened (a complaint, a missed delivery, an offer, a cancellation, a promise).
- Prefer these event types when they fit: %s. You may use another short snake_case type when none fits.
- For each event give a one-sentence canonical description in neutral past tense.
- For each event list the turn numbers that directly evidence it. Use only turn numbers that appear in the window. Every event needs at least one evidence turn.
- Give a confidence between 0 and 1 for how clearly the text supports the event. Do not inflate confidence for vague mentions.
- Do not invent events that are merely implied by tone. No event is a valid result.

# Output Formatting
Return JSON matching the provided schema: a list of events with type (one of %s or snake_case), description, evidence_start, evidence_end (inclusive turn numbers), confidence.
`

// ParseQuestionPrompt turns a free-form causal question into a structured
// intent. Placeholder: allowed event types.
const ParseQuestionPrompt = `
# Task Context
You classify causal questions about call-center transcripts.

# Detailed Task Description & Rules
- Decide the causal direction the question asks for: "causes" (why did X happen), "effects" (what resulted from X), or "explain" (what happened around X).
- Extract the event types the question targets, chosen from: %s. Leave empty if none fits.
- Extract up to 8 search keywords: concrete nouns and verbs from the question, no stop words.
- Set event_intent to false only when the question contains nothing event-like at all (greetings, math questions, requests about the system itself).

# Output Formatting
Return JSON matching the provided schema.
`

// ExplainPrompt renders a selected causal subgraph into prose with
// citations. Placeholders: context block, question.
const ExplainPrompt = `
# Task Context
You write grounded causal explanations from a pre-selected evidence subgraph. The subgraph below is the only material you may use.

# Background Data
%s

# Detailed Task Description & Rules
- Answer the question using only the events, links, and evidence above.
- Describe the causal chain in order: what happened first, what it led to, and how strongly the evidence supports each step.
- Cite evidence with [[span-id]] markers immediately after the claim they support. Use only span ids that appear above. Never quote text that is not in the evidence.
- If the evidence only weakly supports the chain, say so plainly.
- Keep it under 180 words.

# Immediate Task Description or Request
Question: %s
`
