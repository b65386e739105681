package httpdto

type OpenChatRequest struct {
	Username string `json:"username" binding:"required"`
}

type PinRequest struct {
	Pinned bool `json:"pinned"`
}

type SendTextRequest struct {
	Text string `json:"text"`
}

type SetReactionRequest struct {
	Emoji string `json:"emoji" binding:"required"`
}

type AddCommentRequest struct {
	Text string `json:"text" binding:"required"`
}

type UnreadResponse struct {
	Unread int64 `json:"unread"`
}
