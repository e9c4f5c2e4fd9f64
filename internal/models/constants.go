package models

const (
	DefaultQuery     = "Analyze this project and list architectural and logical issues."
	ContextSeparator = "\n\n---\n\n"
	FileHeaderFormat = "# File: %s\n%s"
	UserPromptFormat = "Code context:\n\n%s\n\nQuestion: %s"
	SystemPrompt     = "You are an expert code reviewer. Analyze the provided code context and answer the user's question with specific, actionable insights. Reference file paths when relevant."

	MetadataPath       = "path"
	MetadataChunkIndex = "chunk_index"
	MetadataOffset     = "offset"
)

var (
	// DefaultSeparators is tried in order, the empty string means a hard character cut
	DefaultSeparators = []string{"\nclass ", "\ndef ", "\n\n", "\n", " ", ""}

	// LanguageSeparators overrides DefaultSeparators per file extension
	LanguageSeparators = map[string][]string{
		".py":   {"\nclass ", "\ndef ", "\n\tdef ", "\n    def ", "\n\n", "\n", " ", ""},
		".js":   {"\nclass ", "\nfunction ", "\nexport ", "\nconst ", "\n\n", "\n", " ", ""},
		".ts":   {"\nclass ", "\ninterface ", "\nfunction ", "\nexport ", "\nconst ", "\n\n", "\n", " ", ""},
		".java": {"\nclass ", "\npublic ", "\nprotected ", "\nprivate ", "\n\n", "\n", " ", ""},
		".go":   {"\nfunc ", "\ntype ", "\nvar ", "\nconst ", "\n\n", "\n", " ", ""},
	}
)
