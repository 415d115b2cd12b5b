// Package gateway is the boundary to the chat platform. The Gateway interface
// carries exactly the operations the conversation core needs; the Matrix type
// implements it over mautrix, mapping conversation threads onto Matrix thread
// relations and quota checks onto the platform's rate-limit headers.
package gateway
