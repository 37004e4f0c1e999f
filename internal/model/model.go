package model

// User is a registered account. Salt and Hash are hex encoded and never leave the server.
type User struct {
	ID       string
	Username string
	Salt     string
	Hash     string
}

type Post struct {
	ID       string   `json:"_id"`
	Title    string   `json:"title"`
	Link     string   `json:"link"`
	Upvotes  int      `json:"upvotes"`
	Comments []string `json:"comments"`
	Author   string   `json:"author,omitempty"`
}

type Comment struct {
	ID      string `json:"_id"`
	Body    string `json:"body"`
	Author  string `json:"author"`
	Upvotes int    `json:"upvotes"`
	PostID  string `json:"post"`
}

// PostWithComments is a Post whose comment references have been populated.
// The outer Comments field shadows Post.Comments when encoded.
type PostWithComments struct {
	Post
	Comments []Comment `json:"comments"`
}

// CommentIDs returns the ids of the populated comments in display order.
func (p PostWithComments) CommentIDs() []string {
	ids := make([]string, 0, len(p.Comments))
	for _, c := range p.Comments {
		ids = append(ids, c.ID)
	}
	return ids
}
