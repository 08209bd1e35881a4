package sheets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/oauth2"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"
)

// GoogleStore implements Store on top of the Sheets and Drive APIs.
type GoogleStore struct {
	oauth  *oauth2.Config
	logger *slog.Logger
}

// NewGoogleStore creates a store. oauth is used to refresh expired tokens;
// when nil, tokens are used as-is.
func NewGoogleStore(oauth *oauth2.Config, logger *slog.Logger) *GoogleStore {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &GoogleStore{oauth: oauth, logger: logger}
}

func (g *GoogleStore) tokenSource(ctx context.Context, cred Credential) (oauth2.TokenSource, error) {
	if !cred.Valid() {
		return nil, ErrNoCredential
	}
	if g.oauth != nil {
		return g.oauth.TokenSource(ctx, cred.Token), nil
	}
	return oauth2.StaticTokenSource(cred.Token), nil
}

func (g *GoogleStore) sheetsService(ctx context.Context, cred Credential) (*gsheets.Service, error) {
	ts, err := g.tokenSource(ctx, cred)
	if err != nil {
		return nil, err
	}
	svc, err := gsheets.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create sheets client: %w", ErrRemote, err)
	}
	return svc, nil
}

// ReadRow reads the first row of loc.
func (g *GoogleStore) ReadRow(ctx context.Context, cred Credential, resourceID string, loc Location) ([]string, error) {
	svc, err := g.sheetsService(ctx, cred)
	if err != nil {
		return nil, err
	}

	resp, err := svc.Spreadsheets.Values.Get(resourceID, string(loc)).Context(ctx).Do()
	if err != nil {
		return nil, classify(err, "read %s!%s", resourceID, loc)
	}

	if len(resp.Values) == 0 {
		return []string{}, nil
	}
	return toStrings(resp.Values[0]), nil
}

// WriteRow writes values starting at the anchor cell of loc. Values are
// entered as if typed by a user, as the sheet template expects.
func (g *GoogleStore) WriteRow(ctx context.Context, cred Credential, resourceID string, loc Location, values []string) error {
	return g.update(ctx, cred, resourceID, loc.Anchor(), "USER_ENTERED", values)
}

// ReadCell reads a single cell.
func (g *GoogleStore) ReadCell(ctx context.Context, cred Credential, resourceID string, loc Location) (string, bool, error) {
	row, err := g.ReadRow(ctx, cred, resourceID, loc)
	if err != nil {
		return "", false, err
	}
	if len(row) == 0 || row[0] == "" {
		return "", false, nil
	}
	return row[0], true, nil
}

// WriteCell writes a single cell. The value is stored raw: "1.10" must not
// be turned into the number 1.1.
func (g *GoogleStore) WriteCell(ctx context.Context, cred Credential, resourceID string, loc Location, value string) error {
	return g.update(ctx, cred, resourceID, loc.Anchor(), "RAW", []string{value})
}

func (g *GoogleStore) update(ctx context.Context, cred Credential, resourceID string, loc Location, inputOption string, values []string) error {
	svc, err := g.sheetsService(ctx, cred)
	if err != nil {
		return err
	}

	row := make([]interface{}, len(values))
	for i, v := range values {
		row[i] = v
	}

	_, err = svc.Spreadsheets.Values.Update(resourceID, string(loc), &gsheets.ValueRange{
		Values: [][]interface{}{row},
	}).ValueInputOption(inputOption).Context(ctx).Do()
	if err != nil {
		return classify(err, "write %s!%s", resourceID, loc)
	}

	g.logger.Debug("sheet range updated",
		slog.String("resource", resourceID),
		slog.String("range", string(loc)),
		slog.Int("values", len(values)))
	return nil
}

// CopyTemplate copies the template file in Drive.
func (g *GoogleStore) CopyTemplate(ctx context.Context, cred Credential, templateID, name string) (string, error) {
	ts, err := g.tokenSource(ctx, cred)
	if err != nil {
		return "", err
	}
	svc, err := drive.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return "", fmt.Errorf("%w: failed to create drive client: %w", ErrRemote, err)
	}

	file, err := svc.Files.Copy(templateID, &drive.File{Name: name}).Context(ctx).Do()
	if err != nil {
		return "", classify(err, "copy template %s", templateID)
	}

	g.logger.Info("template copied",
		slog.String("template", templateID),
		slog.String("resource", file.Id),
		slog.String("name", name))
	return file.Id, nil
}

// classify maps API errors onto the package sentinels.
func classify(err error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusNotFound:
			return fmt.Errorf("%s: %w: %w", msg, ErrNotFound, err)
		case http.StatusUnauthorized:
			return fmt.Errorf("%s: %w: %w", msg, ErrNoCredential, err)
		}
	}
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return fmt.Errorf("%s: %w: %w", msg, ErrNoCredential, err)
	}
	return fmt.Errorf("%s: %w: %w", msg, ErrRemote, err)
}

func toStrings(values []interface{}) []string {
	out := make([]string, len(values))
	for i, v := range values {
		if s, ok := v.(string); ok {
			out[i] = s
			continue
		}
		out[i] = fmt.Sprint(v)
	}
	return out
}
