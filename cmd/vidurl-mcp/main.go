package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// fetchRequest mirrors the vidurl API request model.
type fetchRequest struct {
	IDs []string `json:"ids"`
}

// fetchResponse mirrors the vidurl API response model. Results stays raw so
// the identifier order of the server's mapping is passed through untouched.
type fetchResponse struct {
	Success bool            `json:"success"`
	Results json.RawMessage `json:"results"`
	Total   int             `json:"total"`
	Failed  int             `json:"failed"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func main() {
	apiURL := os.Getenv("VIDURL_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	apiKey := os.Getenv("VIDURL_API_KEY")

	s := server.NewMCPServer(
		"vidurl",
		"0.1.0",
		server.WithToolCapabilities(false),
	)

	fetchTool := mcp.NewTool("fetch_video_urls",
		mcp.WithDescription("Resolve video identifiers (e.g. bilibili BV ids) to direct media URLs using a headless browser with a mobile user agent. Returns a JSON object mapping each id to its URL, or to \"获取失败\" when it could not be resolved."),
		mcp.WithArray("ids",
			mcp.Required(),
			mcp.Description("Video identifiers to resolve, in the order the result should list them"),
		),
	)
	s.AddTool(fetchTool, handleFetchVideoURLs(apiURL, apiKey))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func handleFetchVideoURLs(apiURL, apiKey string) server.ToolHandlerFunc {
	// Batches are sequential on the server; 100 ids can take a while.
	client := &http.Client{Timeout: 30 * time.Minute}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ids, err := request.RequireStringSlice("ids")
		if err != nil {
			return mcp.NewToolResultError("ids is required and must be an array of strings"), nil
		}

		results, err := fetchVideoURLs(ctx, client, apiURL, apiKey, ids)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(results), nil
	}
}

// fetchVideoURLs calls POST /api/v1/fetch and returns the mapping as JSON text.
func fetchVideoURLs(ctx context.Context, client *http.Client, apiURL, apiKey string, ids []string) (string, error) {
	body, err := json.Marshal(fetchRequest{IDs: ids})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL+"/api/v1/fetch", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var fr fetchResponse
	if err := json.Unmarshal(respBody, &fr); err != nil {
		return "", fmt.Errorf("parse response (status %d): %w", resp.StatusCode, err)
	}
	if !fr.Success {
		msg := fmt.Sprintf("request failed with status %d", resp.StatusCode)
		if fr.Error != nil {
			msg = fmt.Sprintf("%s: %s", fr.Error.Code, fr.Error.Message)
		}
		return "", errors.New(msg)
	}
	return string(fr.Results), nil
}
