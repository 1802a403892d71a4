package models

// regexes shared by the normalizer and layout reconstructor
const (
	ScriptStyleRegex = `(?is)<(script|style)[^>]*>.*?</(script|style)>`
	TagRegex         = `(?s)<[^>]+>`
	URLRegex         = `http\S+|www\S+|https\S+`
	EmailRegex       = `\S*@\S*\s?`
	EntityRegex      = `\s*&\w+;\s*`
	ControlRegex     = `[\n\r\t]+`
	SpaceRegex       = `\s+`
	DisallowedRegex  = `[^a-zA-Z0-9\s.,!?-]`
	HyphenWrapRegex  = `(\w+)-\s*\n\s*(\w+)`
	MultiSpaceRegex  = `\s{2,}`
	ReferenceRegex   = `[^a-zA-Z0-9_-]`
)

const (
	OCRSeparator       = "\n\n--- OCR Text from Image ---\n\n"
	TableStartTemplate = "[START OF TABLE %d extracted from %s]"
	TableEndTemplate   = "[END OF TABLE %d]"
	ContextSeparator   = "\n\n---\n\n"
	ChunkRefTemplate   = "%s_chunk_%04d"

	NoContextFound = "No relevant context was found in the available documents."
	NoFactsFound   = "No specific facts were found in the knowledge graph for this query."
	FactsHeader    = "Facts from Knowledge Graph:"

	DefaultAuthor    = "Unknown"
	DefaultNodeType  = "concept"
	TextOverrideType = "text_override"
	VirtualPathPref  = "virtual://"
)

// payload keys written for every vector record
const (
	KeyUserID           = "user_id"
	KeyOriginalName     = "original_name"
	KeyFileName         = "file_name"
	KeyFilePath         = "file_path_on_server"
	KeyFileType         = "original_file_type"
	KeyTitle            = "title"
	KeyAuthor           = "author"
	KeyCreationDate     = "creation_date"
	KeyModDate          = "modification_date"
	KeyPageCount        = "page_count"
	KeyCharCount        = "char_count_processed_text"
	KeyNamedEntities    = "named_entities"
	KeyStructural       = "structural_elements"
	KeyIsScanned        = "is_scanned_document"
	KeyOCRApplied       = "ocr_applied"
	KeyFileSize         = "file_size_bytes"
	KeyCreationDateOS   = "creation_date_os"
	KeyModDateOS        = "modification_date_os"
	KeySourceType       = "source_type_actual"
	KeyChunkID          = "chunk_id"
	KeyChunkRefName     = "chunk_reference_name"
	KeyChunkIndex       = "chunk_index"
	KeyChunkCharCount   = "chunk_char_count"
	KeyChunkText        = "chunk_text_content"
	KeyVectorID         = "vector_id"
	KeyScore            = "score"
	KeyPageNumber       = "page_number"
	KeyOriginalFilename = "original_filename"
)

var (
	AnswerPromptTemplate = `Use the context below to answer the question. Cite sources with their [n] markers.

<context>
%s
</context>

<facts>
%s
</facts>

Question: %s
`

	EntityPromptTemplate = `Extract the named entities from the text below.
Respond with a JSON array only, one object per entity: [{"text": "...", "label": "..."}].
Use labels such as PERSON, ORG, GPE, LOC, DATE, EVENT, PRODUCT, WORK_OF_ART, LAW, NORP.

<text>
%s
</text>
`
)
