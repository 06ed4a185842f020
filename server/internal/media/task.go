package media

// Task is the record of one requested download. It is owned by the manager:
// only the manager mutates it, either directly or through the callbacks of
// the single worker bound to it.
type Task struct {
	Id           string  `json:"id"`
	Item         *Item   `json:"item"`
	OutputDir    string  `json:"output_dir"`
	StreamId     string  `json:"stream_id"`
	AudioOnly    bool    `json:"audio_only"`
	Subtitles    bool    `json:"subtitles"`
	SubtitleLang string  `json:"subtitle_lang,omitempty"`
	Status       Status  `json:"status"`
	Progress     float64 `json:"progress"` // 0-100, non-decreasing while downloading
	Error        string  `json:"error,omitempty"`
	OutputPath   string  `json:"output_path,omitempty"`
}
