package handlers

import (
	"bufio"
	"encoding/base64"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/bz888/llamagate/internal/access"
	"github.com/bz888/llamagate/internal/models"
)

const relayChunkSize = 4 * 1024

// ValidationError marks a request missing a required field. It fails the
// call before any upstream dispatch.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return e.Field + " is required"
}

// Generate handles POST /api/ollama/generate: normalize the request,
// authorize the caller's key against the requested model, dispatch to the
// engine and either relay the live stream or return the single record.
func (h *Handler) Generate(c *fiber.Ctx) error {
	req, err := normalizeGenerateRequest(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
			Error:   "Invalid request",
			Message: err.Error(),
		})
	}

	apiKey, _ := c.Locals("api_key").(string)
	decision, _, err := access.Authorize(h.store, apiKey, req.Model)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(models.ErrorResponse{
			Error:   "Failed to look up API key",
			Message: err.Error(),
		})
	}
	switch decision {
	case access.Allowed:
	case access.Unauthorized:
		return c.Status(fiber.StatusUnauthorized).JSON(models.ErrorResponse{
			Error:   "Invalid API key",
			Message: "Project not found with the provided API key",
		})
	case access.ForbiddenInactive:
		return c.Status(fiber.StatusForbidden).JSON(models.ErrorResponse{
			Error:   "Project inactive",
			Message: "This project is currently inactive and cannot use the API",
		})
	case access.ForbiddenModelNotAssigned:
		return c.Status(fiber.StatusForbidden).JSON(models.ErrorResponse{
			Error:   "Model not available",
			Message: fmt.Sprintf("Model '%s' is not assigned to this project", req.Model),
		})
	}

	if req.Stream {
		return h.relayStream(c, req)
	}

	rec, err := h.engine.Generate(c.Context(), req)
	if err != nil {
		return h.engineError(c, err)
	}
	return c.JSON(rec)
}

// relayStream copies the engine's byte stream to the caller as it arrives,
// flushing after every read; the body is never accumulated. A downstream
// write failure aborts the loop and releases the upstream connection.
func (h *Handler) relayStream(c *fiber.Ctx, req models.GenerateRequest) error {
	stream, err := h.engine.GenerateStream(c.Context(), req)
	if err != nil {
		return h.engineError(c, err)
	}

	c.Set(fiber.HeaderContentType, stream.ContentType)
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer stream.Body.Close()

		buf := make([]byte, relayChunkSize)
		for {
			n, readErr := stream.Body.Read(buf)
			if n > 0 {
				if _, err := w.Write(buf[:n]); err != nil {
					return
				}
				if err := w.Flush(); err != nil {
					return
				}
			}
			if readErr != nil {
				if readErr != io.EOF {
					log.Printf("engine stream terminated: %v", readErr)
				}
				return
			}
		}
	})
	return nil
}

// normalizeGenerateRequest canonicalizes a JSON envelope or a multipart form
// into one GenerateRequest. Multipart attachments are read fully, base64
// encoded and appended in arrival order.
func normalizeGenerateRequest(c *fiber.Ctx) (models.GenerateRequest, error) {
	var req models.GenerateRequest

	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		form, err := c.MultipartForm()
		if err != nil {
			return req, fmt.Errorf("invalid multipart form: %w", err)
		}

		if vals := form.Value["model"]; len(vals) > 0 {
			req.Model = vals[0]
		}
		if vals := form.Value["prompt"]; len(vals) > 0 {
			req.Prompt = vals[0]
		}
		if vals := form.Value["stream"]; len(vals) > 0 {
			// invalid booleans fall back to the non-streaming default
			b, _ := strconv.ParseBool(vals[0])
			req.Stream = b
		}

		for _, fh := range form.File["attachments"] {
			f, err := fh.Open()
			if err != nil {
				return req, fmt.Errorf("failed to open attachment %q: %w", fh.Filename, err)
			}
			data, err := io.ReadAll(f)
			f.Close()
			if err != nil {
				return req, fmt.Errorf("failed to read attachment %q: %w", fh.Filename, err)
			}
			req.Images = append(req.Images, base64.StdEncoding.EncodeToString(data))
		}
	} else {
		if err := c.BodyParser(&req); err != nil {
			return req, err
		}
	}

	if strings.TrimSpace(req.Model) == "" {
		return req, &ValidationError{Field: "model"}
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return req, &ValidationError{Field: "prompt"}
	}
	return req, nil
}
