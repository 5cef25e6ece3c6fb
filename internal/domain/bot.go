package domain

// LatestVersion is the mutable head of a bot or intent. It doubles as the
// implicit alias that always tracks the head.
const LatestVersion = "$LATEST"

// BotDefinition is the typed view of the "resource" section of a Lex schema
// document. Only the fields the deployment reads are modelled; the schema
// package keeps the full document for re-serialization.
type BotDefinition struct {
	Name                    string     `json:"name"`
	Locale                  string     `json:"locale"`
	VoiceID                 string     `json:"voiceId"`
	IdleSessionTTLInSeconds int32      `json:"idleSessionTTLInSeconds"`
	ChildDirected           bool       `json:"childDirected"`
	AbortStatement          *Statement `json:"abortStatement,omitempty"`
	ClarificationPrompt     *Prompt    `json:"clarificationPrompt,omitempty"`
	Intents                 []Intent   `json:"intents"`
}

// Intent is a single intent of a bot definition.
type Intent struct {
	Name                string               `json:"name"`
	FulfillmentActivity *FulfillmentActivity `json:"fulfillmentActivity,omitempty"`
	DialogCodeHook      *CodeHook            `json:"dialogCodeHook,omitempty"`
}

// FulfillmentActivity describes how an intent is fulfilled. CodeHook is set
// when fulfillment calls a Lambda function.
type FulfillmentActivity struct {
	Type     string    `json:"type"`
	CodeHook *CodeHook `json:"codeHook,omitempty"`
}

// CodeHook references a Lambda function by ARN.
type CodeHook struct {
	URI            string `json:"uri"`
	MessageVersion string `json:"messageVersion"`
}

// Statement is a set of messages returned to the user.
type Statement struct {
	Messages     []Message `json:"messages"`
	ResponseCard string    `json:"responseCard,omitempty"`
}

// Prompt is a statement that expects an answer.
type Prompt struct {
	Messages     []Message `json:"messages"`
	MaxAttempts  int32     `json:"maxAttempts"`
	ResponseCard string    `json:"responseCard,omitempty"`
}

// Message is a single prompt or statement message.
type Message struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
	GroupNumber *int32 `json:"groupNumber,omitempty"`
}

// Endpoints returns the fulfillment and dialog hook ARNs referenced by the
// intent, in that order. Missing hooks are skipped.
func (i Intent) Endpoints() []string {
	var out []string
	if i.FulfillmentActivity != nil && i.FulfillmentActivity.CodeHook != nil {
		out = append(out, i.FulfillmentActivity.CodeHook.URI)
	}
	if i.DialogCodeHook != nil {
		out = append(out, i.DialogCodeHook.URI)
	}
	return out
}
