// Package httpapp provides the HTTP server for Flapper.
//
//	@title						Flapper API
//	@version					1.0
//	@description				A small link aggregator: submit posts, upvote them, discuss them.
//	@description
//	@description				## Authentication
//	@description
//	@description				Register or log in to receive a token, then send it on every write:
//	@description				```bash
//	@description				curl -X POST /login -d '{"username":"alice","password":"pw123"}'
//	@description				# Returns: {"token": "TOKEN"}
//	@description				curl -X POST /posts -H "Authorization: Bearer TOKEN" -d '{"title":"Hello","link":"http://x"}'
//	@description				```
//	@description				Tokens are valid for 60 days.
//
//	@BasePath					/
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Type "Bearer" followed by a space and the token.
package httpapp
