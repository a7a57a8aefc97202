package scanning

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/invoice-extractor/internal/invoice"
)

// messagesRequest is the part of a Messages API request body the tests inspect
type messagesRequest struct {
	Model     string `json:"model"`
	MaxTokens int    `json:"max_tokens"`
	Messages  []struct {
		Role    string `json:"role"`
		Content []struct {
			Type   string `json:"type"`
			Text   string `json:"text"`
			Source struct {
				Type      string `json:"type"`
				MediaType string `json:"media_type"`
				Data      string `json:"data"`
			} `json:"source"`
		} `json:"content"`
	} `json:"messages"`
}

var _ = Describe("Anthropic", func() {
	var (
		server  *ghttp.Server
		scanner *Anthropic
		doc     *invoice.Document
		err     error
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		scanner = NewAnthropic(Config{BaseURL: server.URL(), Timeout: time.Second})
	})

	AfterEach(func() {
		server.Close()
	})

	When("the API answers with a fenced JSON document", func() {
		var received messagesRequest

		BeforeEach(func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodPost, "/v1/messages"),
				ghttp.VerifyHeaderKV("x-api-key", "secret"),
				ghttp.VerifyHeaderKV("anthropic-version", "2023-06-01"),
				func(w http.ResponseWriter, r *http.Request) {
					body, readErr := io.ReadAll(r.Body)
					Expect(readErr).NotTo(HaveOccurred())
					Expect(json.Unmarshal(body, &received)).To(Succeed())
				},
				ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{
					"content": []map[string]any{
						{"type": "text", "text": "```json\n" + validResponse + "\n```"},
					},
					"stop_reason": "end_turn",
				}),
			))
		})

		JustBeforeEach(func() {
			doc, err = scanner.Extract(context.Background(), pngBytes(), "image/png", "secret")
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("should return the document", func() {
			Expect(doc.Invoice.Header.IssuingCompany).To(Equal("Müller GmbH"))
			Expect(doc.Invoice.Totals.TotalAmount).To(Equal(25.0))
		})

		It("should send one user turn with the image and the instruction", func() {
			Expect(received.Model).To(Equal("claude-3-5-sonnet-20241022"))
			Expect(received.MaxTokens).To(Equal(defaultMaxTokens))
			Expect(received.Messages).To(HaveLen(1))
			Expect(received.Messages[0].Role).To(Equal("user"))

			content := received.Messages[0].Content
			Expect(content).To(HaveLen(2))
			Expect(content[0].Type).To(Equal("image"))
			Expect(content[0].Source.Type).To(Equal("base64"))
			Expect(content[0].Source.MediaType).To(Equal("image/png"))
			Expect(content[0].Source.Data).To(Equal(base64.StdEncoding.EncodeToString(pngBytes())))
			Expect(content[1].Text).To(Equal(invoiceExtractionPrompt))
		})
	})

	When("the API rejects the key", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusUnauthorized, map[string]any{
				"type":  "error",
				"error": map[string]string{"type": "authentication_error", "message": "invalid x-api-key"},
			}))
			doc, err = scanner.Extract(context.Background(), pngBytes(), "image/png", "wrong")
		})

		It("returns a transport error", func() {
			Expect(KindOf(err)).To(Equal(KindTransport))
			Expect(err.Error()).To(ContainSubstring("invalid x-api-key"))
			Expect(doc).To(BeNil())
		})
	})

	When("the model answers with prose", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{
				"content": []map[string]any{{"type": "text", "text": "Sorry, the image is too blurry."}},
			}))
			doc, err = scanner.Extract(context.Background(), pngBytes(), "image/png", "secret")
		})

		It("returns a malformed response error", func() {
			Expect(KindOf(err)).To(Equal(KindMalformedResponse))
		})
	})

	When("the credential is empty", func() {
		BeforeEach(func() {
			doc, err = scanner.Extract(context.Background(), pngBytes(), "image/png", "")
		})

		It("returns an invalid credential error without calling the API", func() {
			Expect(KindOf(err)).To(Equal(KindInvalidCredential))
			Expect(server.ReceivedRequests()).To(BeEmpty())
		})
	})

	When("the API is unreachable", func() {
		BeforeEach(func() {
			server.Close()
			doc, err = scanner.Extract(context.Background(), pngBytes(), "image/png", "secret")
		})

		It("returns a transport error", func() {
			Expect(KindOf(err)).To(Equal(KindTransport))
		})
	})
})

var _ = Describe("OpenAI", func() {
	var (
		server  *ghttp.Server
		scanner *OpenAI
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		scanner = NewOpenAI(Config{BaseURL: server.URL() + "/v1", Timeout: time.Second})
	})

	AfterEach(func() {
		server.Close()
	})

	It("should send the image as a data URL and parse the reply", func() {
		var body string
		server.AppendHandlers(ghttp.CombineHandlers(
			ghttp.VerifyRequest(http.MethodPost, "/v1/chat/completions"),
			ghttp.VerifyHeaderKV("Authorization", "Bearer secret"),
			func(w http.ResponseWriter, r *http.Request) {
				b, _ := io.ReadAll(r.Body)
				body = string(b)
			},
			ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{
				"id":      "chatcmpl-1",
				"object":  "chat.completion",
				"created": 1700000000,
				"model":   "gpt-4o",
				"choices": []map[string]any{{
					"index":         0,
					"finish_reason": "stop",
					"message":       map[string]any{"role": "assistant", "content": validResponse},
				}},
			}),
		))

		doc, err := scanner.Extract(context.Background(), jpegBytes(), "image/jpeg", "secret")
		Expect(err).NotTo(HaveOccurred())
		Expect(doc.Invoice.Header.InvoiceNumber).To(Equal("INV-1"))
		Expect(body).To(ContainSubstring(`data:image/png;base64,`))
		Expect(body).To(ContainSubstring(`"model":"gpt-4o"`))
	})

	It("returns a transport error for a non-success status", func() {
		server.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusTooManyRequests, map[string]any{
			"error": map[string]any{"message": "Rate limit reached", "type": "requests"},
		}))

		_, err := scanner.Extract(context.Background(), pngBytes(), "image/png", "secret")
		Expect(KindOf(err)).To(Equal(KindTransport))
	})

	It("returns a transport error when there are no choices", func() {
		server.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{
			"id":      "chatcmpl-2",
			"choices": []map[string]any{},
		}))

		_, err := scanner.Extract(context.Background(), pngBytes(), "image/png", "secret")
		Expect(KindOf(err)).To(Equal(KindTransport))
	})
})

var _ = Describe("Ollama", func() {
	var (
		server  *ghttp.Server
		scanner *Ollama
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		scanner = NewOllama(Config{BaseURL: server.URL() + "/", Model: "llava:1.6", Timeout: time.Second})
	})

	AfterEach(func() {
		server.Close()
	})

	It("should attach the image to the user message", func() {
		var received ollamaChatRequest
		server.AppendHandlers(ghttp.CombineHandlers(
			ghttp.VerifyRequest(http.MethodPost, "/api/chat"),
			ghttp.VerifyHeaderKV("Authorization", "Bearer local"),
			func(w http.ResponseWriter, r *http.Request) {
				Expect(json.NewDecoder(r.Body).Decode(&received)).To(Succeed())
			},
			ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{
				"message": map[string]any{"role": "assistant", "content": validResponse},
				"done":    true,
			}),
		))

		doc, err := scanner.Extract(context.Background(), pngBytes(), "image/png", "local")
		Expect(err).NotTo(HaveOccurred())
		Expect(doc.Invoice.Totals.BalanceDue).To(Equal(25.0))

		Expect(received.Model).To(Equal("llava:1.6"))
		Expect(received.Stream).To(BeFalse())
		Expect(received.Messages).To(HaveLen(2))
		Expect(received.Messages[1].Images).To(HaveLen(1))
		Expect(strings.Contains(received.Messages[1].Content, "line_items")).To(BeTrue())
	})

	It("returns a transport error for a non-success status", func() {
		server.AppendHandlers(ghttp.RespondWith(http.StatusNotFound, `{"error":"model not found"}`))

		_, err := scanner.Extract(context.Background(), pngBytes(), "image/png", "local")
		Expect(KindOf(err)).To(Equal(KindTransport))
		Expect(err.Error()).To(ContainSubstring("model not found"))
	})
})

var _ = Describe("Gemini", func() {
	var (
		server  *ghttp.Server
		scanner *Gemini
	)

	const generatePath = "/v1beta/models/gemini-2.5-pro:generateContent"

	BeforeEach(func() {
		server = ghttp.NewServer()
		scanner = NewGemini(Config{BaseURL: server.URL(), Timeout: 5 * time.Second})
	})

	AfterEach(func() {
		server.Close()
	})

	It("should send the image and the instruction and parse the reply", func() {
		var body string
		server.AppendHandlers(ghttp.CombineHandlers(
			ghttp.VerifyRequest(http.MethodPost, generatePath),
			func(w http.ResponseWriter, r *http.Request) {
				b, readErr := io.ReadAll(r.Body)
				Expect(readErr).NotTo(HaveOccurred())
				body = string(b)
			},
			ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{
				"candidates": []map[string]any{{
					"content": map[string]any{
						"role":  "model",
						"parts": []map[string]any{{"text": "```json\n" + validResponse + "\n```"}},
					},
				}},
			}),
		))

		doc, err := scanner.Extract(context.Background(), pngBytes(), "image/png", "secret")
		Expect(err).NotTo(HaveOccurred())
		Expect(doc.Invoice.Header.IssuingCompany).To(Equal("Müller GmbH"))
		Expect(body).To(ContainSubstring(base64.StdEncoding.EncodeToString(pngBytes())))
		Expect(body).To(ContainSubstring("image/png"))
	})

	It("returns a transport error when the API rejects the request", func() {
		server.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusBadRequest, map[string]any{
			"error": map[string]any{"code": 400, "message": "API key not valid", "status": "INVALID_ARGUMENT"},
		}))

		_, err := scanner.Extract(context.Background(), pngBytes(), "image/png", "wrong")
		Expect(KindOf(err)).To(Equal(KindTransport))
		Expect(err.Error()).To(ContainSubstring("API key not valid"))
	})

	It("returns a transport error when there are no candidates", func() {
		server.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{
			"candidates": []map[string]any{},
		}))

		_, err := scanner.Extract(context.Background(), pngBytes(), "image/png", "secret")
		Expect(KindOf(err)).To(Equal(KindTransport))
	})

	It("returns an invalid credential error without calling the API", func() {
		_, err := scanner.Extract(context.Background(), pngBytes(), "image/png", "")
		Expect(KindOf(err)).To(Equal(KindInvalidCredential))
		Expect(server.ReceivedRequests()).To(BeEmpty())
	})
})
