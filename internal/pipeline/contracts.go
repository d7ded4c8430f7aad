package pipeline

import "context"

// RoleUser marks messages authored by the caller.
const RoleUser = "user"

type Response struct {
	Text string
}

// RemoteFile is a handle to a file held by the remote service.
type RemoteFile struct {
	Name        string
	DisplayName string
	URI         string
	MIMEType    string
}

type UploadRequest struct {
	Path        string
	DisplayName string
	MIMEType    string
}

// Message is one chat turn: files are referenced before the text part.
type Message struct {
	Role  string
	Files []RemoteFile
	Text  string
}

type Generator interface {
	Generate(ctx context.Context, model string, prompt string) (*Response, error)
}

type FileStore interface {
	Upload(ctx context.Context, request UploadRequest) (RemoteFile, error)
	Delete(ctx context.Context, name string) error
}

type ChatSession interface {
	Send(ctx context.Context, message Message) (*Response, error)
}

type Chatter interface {
	StartChat(model string, history []Message) ChatSession
}

// Service is everything the two commands need from the remote model API.
type Service interface {
	Generator
	FileStore
	Chatter
	Close() error
}
