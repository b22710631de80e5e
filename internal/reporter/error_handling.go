package reporter

import (
	stderrors "errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"bank-reconciliation-service/internal/reconciler"
	"bank-reconciliation-service/pkg/errors"
	"bank-reconciliation-service/pkg/logger"
)

// SafeReportGenerator wraps ReportGenerator with validation and fallbacks so
// a finished reconciliation run is never lost to a reporting failure
type SafeReportGenerator struct {
	*ReportGenerator
	logger logger.Logger
}

// NewSafeReportGenerator creates a new safe report generator
func NewSafeReportGenerator(config *ReportConfig, log logger.Logger) (*SafeReportGenerator, error) {
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	generator, err := NewReportGenerator(config)
	if err != nil {
		return nil, errors.ConfigurationError(
			errors.CodeInvalidConfig,
			"report_config",
			config,
			err,
		).WithSuggestion("Check the report configuration values")
	}

	return &SafeReportGenerator{
		ReportGenerator: generator,
		logger:          log.WithComponent("reporter"),
	}, nil
}

// GenerateReportSafely generates a report, falling back to the console format
// or to a backup file when the primary attempt fails
func (srg *SafeReportGenerator) GenerateReportSafely(results []*reconciler.RunResult, writer io.Writer) error {
	srg.logger.WithFields(logger.Fields{
		"format":  srg.config.Format,
		"output":  getWriterDescription(writer),
		"results": len(results),
	}).Info("Starting report generation")

	if err := srg.validateInputs(results, writer); err != nil {
		srg.logger.WithError(err).Error("Report generation failed: input validation")
		return err
	}

	if err := srg.generateWithFallback(results, writer); err != nil {
		srg.logger.WithError(err).Error("Report generation failed")
		return err
	}

	srg.logger.Info("Report generation completed successfully")
	return nil
}

// WriteReportFile creates path and writes the report into it
func (srg *SafeReportGenerator) WriteReportFile(results []*reconciler.RunResult, path string) error {
	file, err := os.Create(path)
	if err != nil {
		code := errors.CodeFilePermission
		if stderrors.Is(err, fs.ErrNotExist) {
			code = errors.CodeFileNotFound
		}
		return errors.FileError(code, path, err).
			WithSuggestion("Check that the output directory exists and is writable")
	}

	genErr := srg.GenerateReportSafely(results, file)
	if closeErr := file.Close(); genErr == nil && closeErr != nil {
		return errors.FileError(errors.CodeFileCorrupted, path, closeErr)
	}
	return genErr
}

func (srg *SafeReportGenerator) validateInputs(results []*reconciler.RunResult, writer io.Writer) error {
	if len(results) == 0 {
		return errors.ValidationError(
			errors.CodeMissingField,
			"results",
			nil,
			nil,
		).WithSuggestion("Run a reconciliation before generating a report")
	}
	for i, r := range results {
		if r == nil {
			return errors.ValidationError(errors.CodeMissingField, fmt.Sprintf("results[%d]", i), nil, nil)
		}
	}

	if writer == nil {
		return errors.ValidationError(
			errors.CodeMissingField,
			"writer",
			nil,
			nil,
		).WithSuggestion("Provide a valid output writer")
	}

	if srg.config.Format.IsBinary() {
		if f, ok := writer.(*os.File); ok && (f == os.Stdout || f == os.Stderr) {
			return errors.ValidationError(
				errors.CodeInvalidValue,
				"output",
				string(srg.config.Format),
				nil,
			).WithSuggestion("Use --output to write the workbook to a file")
		}
	}
	return nil
}

// generateWithFallback attempts to generate the report with fallback strategies
func (srg *SafeReportGenerator) generateWithFallback(results []*reconciler.RunResult, writer io.Writer) error {
	err := srg.GenerateReport(results, writer)
	if err == nil {
		return nil
	}

	srg.logger.WithError(err).Warn("Primary report generation failed, attempting fallback")

	// A full disk or revoked permission fails every format alike
	if srg.shouldAttemptOutputFallback(err, writer) {
		return srg.generateWithOutputFallback(results, writer, err)
	}

	if srg.shouldAttemptFormatFallback() {
		return srg.generateWithFormatFallback(results, writer, err)
	}

	return srg.wrapGenerationError(err)
}

// Binary formats are excluded: their writer already holds partial output
// that text cannot be appended to.
func (srg *SafeReportGenerator) shouldAttemptFormatFallback() bool {
	return srg.config.Format != FormatConsole && !srg.config.Format.IsBinary()
}

func (srg *SafeReportGenerator) generateWithFormatFallback(results []*reconciler.RunResult, writer io.Writer, originalErr error) error {
	fallbackConfig := *srg.config
	fallbackConfig.Format = FormatConsole
	fallbackConfig.UseColors = false

	srg.logger.WithField("fallback_format", FormatConsole).Info("Attempting format fallback")

	fallbackGenerator, err := NewReportGenerator(&fallbackConfig)
	if err != nil {
		return srg.wrapGenerationError(originalErr)
	}

	fmt.Fprintf(writer, "NOTE: Report generated in fallback format due to error with requested format\n")
	fmt.Fprintf(writer, "Original error: %v\n\n", originalErr)

	if err := fallbackGenerator.GenerateReport(results, writer); err != nil {
		return errors.InternalError(
			errors.CodeUnexpectedError,
			"report_fallback",
			fmt.Errorf("both primary and fallback generation failed: primary=%v, fallback=%v", originalErr, err),
		)
	}

	srg.logger.Info("Report generated successfully using format fallback")
	return nil
}

func (srg *SafeReportGenerator) shouldAttemptOutputFallback(err error, writer io.Writer) bool {
	if file, ok := writer.(*os.File); ok && file.Name() != "" && file != os.Stdout && file != os.Stderr {
		return isFileError(err)
	}
	return false
}

func (srg *SafeReportGenerator) generateWithOutputFallback(results []*reconciler.RunResult, writer io.Writer, originalErr error) error {
	file, ok := writer.(*os.File)
	if !ok {
		return srg.wrapGenerationError(originalErr)
	}

	originalPath := file.Name()
	backupPath := backupPathFor(originalPath)

	srg.logger.WithFields(logger.Fields{
		"original_file": originalPath,
		"backup_file":   backupPath,
	}).Info("Attempting output fallback")

	backupFile, err := os.Create(backupPath)
	if err != nil {
		return srg.wrapGenerationError(originalErr)
	}
	defer backupFile.Close()

	if !srg.config.Format.IsBinary() {
		fmt.Fprintf(backupFile, "NOTE: Report saved to backup location due to error with original output\n")
		fmt.Fprintf(backupFile, "Original file: %s\n", originalPath)
		fmt.Fprintf(backupFile, "Original error: %v\n\n", originalErr)
	}

	if err := srg.GenerateReport(results, backupFile); err != nil {
		return errors.InternalError(
			errors.CodeUnexpectedError,
			"report_output_fallback",
			fmt.Errorf("both primary and backup output failed: primary=%v, backup=%v", originalErr, err),
		)
	}

	srg.logger.WithField("backup_file", backupPath).Info("Report generated successfully using output fallback")
	fmt.Fprintf(os.Stderr, "Warning: Could not write to %s, report saved to %s\n", originalPath, backupPath)
	return nil
}

func isFileError(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, fs.ErrPermission) || stderrors.Is(err, fs.ErrNotExist) ||
		stderrors.Is(err, fs.ErrExist) || stderrors.Is(err, fs.ErrClosed) ||
		stderrors.Is(err, syscall.ENOSPC) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "no space left") || strings.Contains(msg, "disk full")
}

// backupPathFor turns report.csv into report_backup.csv
func backupPathFor(originalPath string) string {
	dir := filepath.Dir(originalPath)
	base := filepath.Base(originalPath)
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext)
	return filepath.Join(dir, fmt.Sprintf("%s_backup%s", name, ext))
}

func (srg *SafeReportGenerator) wrapGenerationError(err error) error {
	if reconcilerErr, ok := errors.AsReconcilerError(err); ok {
		return reconcilerErr
	}
	return errors.InternalError(
		errors.CodeProcessingError,
		"report_generation",
		err,
	).WithSuggestion("Check the output destination and report format settings")
}

func getWriterDescription(writer io.Writer) string {
	switch w := writer.(type) {
	case *os.File:
		if w.Name() != "" {
			return fmt.Sprintf("file:%s", w.Name())
		}
		return "file:unnamed"
	default:
		return fmt.Sprintf("writer:%T", writer)
	}
}
