// Package provider abstracts the LLM backends the agent loop can talk to.
//
// GeminiProvider covers both the Gemini Developer API and Vertex AI via the
// google-genai SDK. EchoProvider is a credential-free stand-in used in
// development and tests. ForModel maps a configured model spec to whichever
// provider should serve it.
package provider
