// Package llm adapts the Gemini API to the pipeline contracts.
package llm

import (
	"context"
	"io"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/google/generative-ai-go/genai"
	"github.com/googleapis/gax-go/v2/apierror"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/temirov/gemini-tasks/internal/errkind"
	"github.com/temirov/gemini-tasks/internal/fsops"
	"github.com/temirov/gemini-tasks/internal/pipeline"
)

const (
	mimeOptionMarker      = "mime"
	badRequestStatusCode  = 400
	uploadVariantOptions  = "with_options"
	uploadVariantPlain    = "plain"
	uploadFallbackMessage = "upload rejected the MIME option, retrying without options"
	uploadedLogMessage    = "file uploaded"
	deletedLogMessage     = "remote file deleted"

	newClientErrorMessage    = "create Gemini client"
	generateErrorMessage     = "generate content"
	sendErrorMessage         = "send chat message"
	uploadErrorFormat        = "upload %s"
	deleteErrorFormat        = "delete remote file %s"
	openUploadErrorFormat    = "open %s for upload"
	noCandidatesErrorMessage = "model returned no candidates"
	blockedErrorFormat       = "model blocked the request: %s"
	noTextErrorFormat        = "model returned no text (finish reason: %s)"
)

type fileUploader interface {
	UploadFile(ctx context.Context, name string, reader io.Reader, options *genai.UploadFileOptions) (*genai.File, error)
	DeleteFile(ctx context.Context, name string) error
}

type uploadVariant struct {
	name    string
	options func(request pipeline.UploadRequest) *genai.UploadFileOptions
}

// uploadVariants are tried in order; the plain call omits the MIME type and
// lets the service detect it.
var uploadVariants = []uploadVariant{
	{
		name: uploadVariantOptions,
		options: func(request pipeline.UploadRequest) *genai.UploadFileOptions {
			return &genai.UploadFileOptions{DisplayName: request.DisplayName, MIMEType: request.MIMEType}
		},
	},
	{
		name:    uploadVariantPlain,
		options: func(pipeline.UploadRequest) *genai.UploadFileOptions { return nil },
	},
}

// Client implements pipeline.Service on top of the genai SDK.
type Client struct {
	api    *genai.Client
	files  fileUploader
	fs     fsops.Ops
	logger *zap.Logger
}

var _ pipeline.Service = (*Client)(nil)

// NewClient authenticates with a static API key.
func NewClient(ctx context.Context, apiKey string, fs fsops.Ops, logger *zap.Logger) (*Client, error) {
	api, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, errkind.Mark(errors.Wrap(err, newClientErrorMessage), errkind.ErrRemoteCall)
	}
	return newClient(api, api, fs, logger), nil
}

func newClient(api *genai.Client, files fileUploader, fs fsops.Ops, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{api: api, files: files, fs: fs, logger: logger}
}

func (c *Client) Close() error {
	if c.api == nil {
		return nil
	}
	return c.api.Close()
}

func (c *Client) Generate(ctx context.Context, model string, prompt string) (*pipeline.Response, error) {
	response, err := c.api.GenerativeModel(model).GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return nil, classifyRemoteError(err, generateErrorMessage)
	}
	return responseText(response)
}

// StartChat opens a session whose history is replayed before every message.
func (c *Client) StartChat(model string, history []pipeline.Message) pipeline.ChatSession {
	session := c.api.GenerativeModel(model).StartChat()
	session.History = toContents(history)
	return chatSession{session: session}
}

type chatSession struct {
	session *genai.ChatSession
}

// Send drops the user turn that SendMessage records when the request
// fails, so a retried send replays the same history.
func (s chatSession) Send(ctx context.Context, message pipeline.Message) (*pipeline.Response, error) {
	historyLength := len(s.session.History)
	response, err := s.session.SendMessage(ctx, toParts(message)...)
	if err != nil {
		s.session.History = s.session.History[:historyLength]
		return nil, classifyRemoteError(err, sendErrorMessage)
	}
	return responseText(response)
}

// Upload sends the local file, falling back to a plain call when the
// service refuses the MIME option.
func (c *Client) Upload(ctx context.Context, request pipeline.UploadRequest) (pipeline.RemoteFile, error) {
	var lastErr error
	for index, variant := range uploadVariants {
		uploaded, uploadErr := c.uploadOnce(ctx, request, variant.options(request))
		if uploadErr == nil {
			remote := pipeline.RemoteFile{
				Name:        uploaded.Name,
				DisplayName: uploaded.DisplayName,
				URI:         uploaded.URI,
				MIMEType:    uploaded.MIMEType,
			}
			c.logger.Info(uploadedLogMessage,
				zap.String("path", request.Path),
				zap.String("name", remote.Name),
				zap.String("mime_type", remote.MIMEType),
				zap.String("variant", variant.name))
			return remote, nil
		}
		if errors.Is(uploadErr, errkind.ErrFileAccess) {
			return pipeline.RemoteFile{}, uploadErr
		}
		lastErr = uploadErr
		if index == len(uploadVariants)-1 || !rejectsMIMEOption(uploadErr) {
			break
		}
		c.logger.Warn(uploadFallbackMessage, zap.String("path", request.Path), zap.Error(uploadErr))
	}
	return pipeline.RemoteFile{}, classifyRemoteError(lastErr, uploadErrorFormat, request.Path)
}

func (c *Client) uploadOnce(ctx context.Context, request pipeline.UploadRequest, options *genai.UploadFileOptions) (*genai.File, error) {
	file, openErr := c.fs.Open(request.Path)
	if openErr != nil {
		return nil, errkind.Mark(errors.Wrapf(openErr, openUploadErrorFormat, request.Path), errkind.ErrFileAccess)
	}
	defer func() { _ = file.Close() }()
	return c.files.UploadFile(ctx, "", file, options)
}

func (c *Client) Delete(ctx context.Context, name string) error {
	if err := c.files.DeleteFile(ctx, name); err != nil {
		return classifyRemoteError(err, deleteErrorFormat, name)
	}
	c.logger.Debug(deletedLogMessage, zap.String("name", name))
	return nil
}

func toContents(history []pipeline.Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history))
	for _, message := range history {
		role := message.Role
		if role == "" {
			role = pipeline.RoleUser
		}
		contents = append(contents, &genai.Content{Role: role, Parts: toParts(message)})
	}
	return contents
}

func toParts(message pipeline.Message) []genai.Part {
	parts := make([]genai.Part, 0, len(message.Files)+1)
	for _, file := range message.Files {
		uri := file.URI
		if uri == "" {
			uri = file.Name
		}
		parts = append(parts, genai.FileData{MIMEType: file.MIMEType, URI: uri})
	}
	if message.Text != "" {
		parts = append(parts, genai.Text(message.Text))
	}
	return parts
}

// responseText concatenates the text parts of the first candidate. A nil
// response stays nil so the retry runner can report it.
func responseText(response *genai.GenerateContentResponse) (*pipeline.Response, error) {
	if response == nil {
		return nil, nil
	}
	if len(response.Candidates) == 0 {
		noCandidatesErr := errors.New(noCandidatesErrorMessage)
		if response.PromptFeedback != nil && response.PromptFeedback.BlockReason != genai.BlockReasonUnspecified {
			noCandidatesErr = errors.Wrapf(noCandidatesErr, blockedErrorFormat, response.PromptFeedback.BlockReason.String())
		}
		return nil, errkind.Mark(noCandidatesErr, errkind.ErrResponseFormat)
	}
	candidate := response.Candidates[0]
	var builder strings.Builder
	hasText := false
	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			if text, isText := part.(genai.Text); isText {
				builder.WriteString(string(text))
				hasText = true
			}
		}
	}
	if !hasText {
		return nil, errkind.Mark(errors.Newf(noTextErrorFormat, candidate.FinishReason.String()), errkind.ErrResponseFormat)
	}
	return &pipeline.Response{Text: builder.String()}, nil
}

// classifyRemoteError marks API failures as recoverable. Cancellation and
// blocked content are terminal.
func classifyRemoteError(err error, operationFormat string, args ...any) error {
	if err == nil {
		return nil
	}
	wrapped := errors.Wrapf(err, operationFormat, args...)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return errkind.Mark(wrapped, errkind.ErrRemoteCall)
	}
	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		return errkind.Mark(wrapped, errkind.ErrResponseFormat)
	}
	if _, isAPIError := remoteStatus(err); isAPIError {
		return errkind.Recoverable(wrapped)
	}
	return errkind.Mark(wrapped, errkind.ErrRemoteCall)
}

// remoteStatus extracts the HTTP status of an API error.
func remoteStatus(err error) (int, bool) {
	var googleErr *googleapi.Error
	if errors.As(err, &googleErr) {
		return googleErr.Code, true
	}
	var apiErr *apierror.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPCode(), true
	}
	return 0, false
}

func rejectsMIMEOption(err error) bool {
	status, isAPIError := remoteStatus(err)
	if !isAPIError || status != badRequestStatusCode {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), mimeOptionMarker)
}
