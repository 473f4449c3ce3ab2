package recovery

// DefaultLocale is used when a caller asks for an unknown locale.
const DefaultLocale = "en"

var userMessages = map[string]map[ErrorType]string{
	"en": {
		TypeSearchProvider: "The search service is having trouble. We will retry with a simpler query.",
		TypeTimeout:        "The request took too long. It will be retried shortly.",
		TypeRateLimit:      "Too many requests were sent. Please wait before trying again.",
		TypeTokenLimit:     "The content is too long to process. It will be shortened and retried.",
		TypeParse:          "The response could not be read. It will be retried.",
		TypeNetwork:        "A network problem occurred. Please check the connection.",
		TypeDB:             "Saving progress failed. It will be retried.",
		TypeUnknown:        "An unexpected error occurred. It will be retried.",
	},
	"ja": {
		TypeSearchProvider: "検索サービスで問題が発生しました。より簡単なクエリで再試行します。",
		TypeTimeout:        "リクエストがタイムアウトしました。まもなく再試行します。",
		TypeRateLimit:      "リクエストが多すぎます。しばらく待ってから再試行してください。",
		TypeTokenLimit:     "内容が長すぎます。短くして再試行します。",
		TypeParse:          "応答を解析できませんでした。再試行します。",
		TypeNetwork:        "ネットワークエラーが発生しました。接続を確認してください。",
		TypeDB:             "進捗の保存に失敗しました。再試行します。",
		TypeUnknown:        "予期しないエラーが発生しました。再試行します。",
	},
}

var suggestedActions = map[string]map[ErrorType]string{
	"en": {
		TypeSearchProvider: "simplify the search query",
		TypeTimeout:        "retry after a short wait",
		TypeRateLimit:      "wait for the rate limit window to reset",
		TypeTokenLimit:     "shorten the prompt",
		TypeParse:          "retry immediately",
		TypeNetwork:        "check connectivity and retry",
		TypeDB:             "check the database file and retry",
		TypeUnknown:        "retry later or inspect the logs",
	},
	"ja": {
		TypeSearchProvider: "検索クエリを簡略化してください",
		TypeTimeout:        "少し待ってから再試行してください",
		TypeRateLimit:      "レート制限の解除を待ってください",
		TypeTokenLimit:     "プロンプトを短くしてください",
		TypeParse:          "すぐに再試行してください",
		TypeNetwork:        "接続を確認して再試行してください",
		TypeDB:             "データベースを確認して再試行してください",
		TypeUnknown:        "後で再試行するかログを確認してください",
	},
}

// UserMessage returns the localized message for typ.
func UserMessage(typ ErrorType, locale string) string {
	return lookup(userMessages, typ, locale)
}

// SuggestedAction returns the localized remediation hint for typ.
func SuggestedAction(typ ErrorType, locale string) string {
	return lookup(suggestedActions, typ, locale)
}

// Locales lists the supported locales.
func Locales() []string {
	return []string{"en", "ja"}
}

func lookup(catalog map[string]map[ErrorType]string, typ ErrorType, locale string) string {
	msgs, ok := catalog[locale]
	if !ok {
		msgs = catalog[DefaultLocale]
	}
	if m, ok := msgs[typ]; ok {
		return m
	}
	return msgs[TypeUnknown]
}
