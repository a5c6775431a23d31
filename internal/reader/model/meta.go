// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package model

// WorkMeta identifies the work a reading session belongs to, for display
// purposes only — it plays no part in chapter/page resolution.
type WorkMeta struct {
	SourceID     string
	WorkID       string
	Title        string
	ThumbnailURL string
}
