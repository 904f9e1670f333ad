package gitea

// createIssueRequest is the body of POST /repos/{owner}/{repo}/issues.
type createIssueRequest struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// editIssueRequest is the body of PATCH /repos/{owner}/{repo}/issues/{index}.
type editIssueRequest struct {
	State string `json:"state"`
}

// commentRequest is the body of POST .../issues/{index}/comments.
type commentRequest struct {
	Body string `json:"body"`
}

// issueResponse holds the issue fields the bot reads. Pointers tell a
// missing field from a zero value.
type issueResponse struct {
	Number    *int64  `json:"number"`
	State     *string `json:"state"`
	CreatedAt *string `json:"created_at"`
}

// commentResponse is one element of GET .../issues/{index}/comments.
type commentResponse struct {
	Body      *string `json:"body"`
	User      *user   `json:"user"`
	CreatedAt *string `json:"created_at"`
}

type user struct {
	Login *string `json:"login"`
}

// errorResponse is Gitea's API error envelope.
type errorResponse struct {
	Message string `json:"message"`
}
