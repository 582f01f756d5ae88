package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/bstardust/exif-geotag/internal/config"
	"github.com/bstardust/exif-geotag/internal/exif"
	"github.com/bstardust/exif-geotag/internal/fshelper"
	"github.com/bstardust/exif-geotag/internal/geo"
	"github.com/bstardust/exif-geotag/internal/logger"
	"github.com/bstardust/exif-geotag/internal/metadata"
	"github.com/bstardust/exif-geotag/internal/uploader"
	"github.com/bstardust/exif-geotag/pkg/common"
	"github.com/bstardust/exif-geotag/pkg/s3client"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func newTagCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tag --image IN --csv META.csv --output OUT.jpg",
		Short: "Write CSV metadata into an image's EXIF and print the result",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runTag(cmd.Context())
		},
	}

	bindTagFlags(a.v, cmd.Flags())
	return cmd
}

// bindTagFlags declares the tag flags on flags and binds them to config keys
func bindTagFlags(v *viper.Viper, flags *pflag.FlagSet) {
	bindings := []struct {
		key  string
		name string
	}{
		{"input.image", "image"},
		{"input.csv", "csv"},
		{"input.output", "output"},
		{"overrides.model", "model"},
		{"overrides.datetime", "datetime"},
		{"overrides.latitude", "lat"},
		{"overrides.longitude", "lon"},
		{"base_dir", "base-dir"},
		{"strict", "strict"},
		{"encode.numeric_policy", "numeric-policy"},
		{"encode.coordinate_check", "coordinate-check"},
		{"encode.camera_settings", "camera-settings"},
		{"encode.jpeg_quality", "quality"},
		{"s3.endpoint", "endpoint"},
		{"s3.region", "region"},
		{"s3.bucket", "bucket"},
		{"s3.access_key", "access-key"},
		{"s3.secret_key", "secret-key"},
		{"s3.use_ssl", "use-ssl"},
		{"s3.prefix", "prefix"},
		{"upload.enabled", "upload"},
		{"upload.dry_run", "dry-run"},
		{"upload.skip_existing", "skip-existing"},
		{"upload.max_retries", "max-retries"},
		{"upload.timeout", "upload-timeout"},
	}

	d := config.New()

	// Input files
	flags.String("image", "", "Source image (JPEG, PNG, GIF, BMP, TIFF or WebP)")
	flags.String("csv", "", "Metadata CSV with key,value rows")
	flags.String("output", "", "Output JPEG path (must differ from the source)")
	flags.String("base-dir", "", "Directory relative paths are resolved against")

	// Explicit values that win over the CSV
	flags.String("model", "", "Camera model, overrides the CSV Model")
	flags.String("datetime", "", "Capture time, overrides the CSV timestamp")
	flags.Float64("lat", 0, "Latitude magnitude in decimal degrees, overrides the CSV latitude")
	flags.Float64("lon", 0, "Longitude magnitude in decimal degrees, overrides the CSV longitude")

	// Encoding behaviour
	flags.String("numeric-policy", d.Encode.NumericPolicy, "Missing or malformed numbers: default-zero or fail")
	flags.String("coordinate-check", d.Encode.CoordinateCheck, "Coordinate validation: off or strict")
	flags.Bool("camera-settings", d.Encode.CameraSettings, "Also write focal length, aperture, ISO and related Exif tags")
	flags.Int("quality", d.Encode.JPEGQuality, "JPEG quality of the re-encoded image")
	flags.Bool("strict", d.Strict, "Exit non-zero when any stage fails")

	// Publishing
	flags.Bool("upload", d.Upload.Enabled, "Upload the tagged image to S3-compatible storage")
	flags.String("endpoint", "", "S3 endpoint URL")
	flags.String("region", d.S3.Region, "S3 region")
	flags.String("bucket", "", "S3 bucket name")
	flags.String("access-key", "", "S3 access key")
	flags.String("secret-key", "", "S3 secret key")
	flags.Bool("use-ssl", d.S3.UseSSL, "Use SSL for S3 connection")
	flags.String("prefix", "", "Prefix for S3 object keys")
	flags.Bool("dry-run", d.Upload.DryRun, "Log the upload without performing it")
	flags.Bool("skip-existing", d.Upload.SkipExisting, "Skip the upload when the object already exists")
	flags.Int("max-retries", d.Upload.MaxRetries, "Retries for transient upload failures")
	flags.Duration("upload-timeout", d.Upload.Timeout, "Timeout for the whole upload")

	for _, b := range bindings {
		v.BindPFlag(b.key, flags.Lookup(b.name))
	}
}

// stageFailures collects the errors of a run that kept going
type stageFailures []error

func (f *stageFailures) report(err error) {
	stage := common.Stage(err)
	if stage == "" {
		logger.Error("upload failed: %s", s3client.FormatError(err))
	} else {
		logger.Error("%s failed: %v", stage, err)
	}
	*f = append(*f, err)
}

func (a *app) runTag(ctx context.Context) error {
	cfg := a.cfg
	if cfg.Input.Image == "" || cfg.Input.Output == "" {
		return common.NewConfigError("--image and --output are required")
	}

	policy, err := metadata.ParseNumericPolicy(cfg.Encode.NumericPolicy)
	if err != nil {
		return err
	}
	check, err := geo.ParseCheckMode(cfg.Encode.CoordinateCheck)
	if err != nil {
		return err
	}

	fs := fshelper.NewResolver(cfg.BaseDir)
	var failures stageFailures

	// Load
	rec := metadata.Record{}
	if cfg.Input.CSV == "" {
		logger.Warn("No metadata CSV given, using explicit values and defaults")
	} else if loaded, err := metadata.NewLoader(fs).Load(cfg.Input.CSV); err != nil {
		failures.report(err)
	} else {
		rec = loaded
	}

	// Encode
	existed, _ := fs.Exists(cfg.Input.Output)
	encoded := false
	lat, lon, err := coordinates(cfg, rec, policy)
	if err != nil {
		failures.report(err)
	} else {
		enc := exif.NewEncoder(fs, exif.Options{
			NumericPolicy:   policy,
			CoordinateCheck: check,
			CameraSettings:  cfg.Encode.CameraSettings,
			JPEGQuality:     cfg.Encode.JPEGQuality,
		})
		err := enc.Encode(cfg.Input.Image, cfg.Input.Output, rec, rec,
			cfg.Overrides.Model, cfg.Overrides.DateTime, lat, lon)
		if err != nil {
			failures.report(err)
		} else {
			encoded = true
			if existed {
				logger.Info("Replaced existing output %s", fs.Resolve(cfg.Input.Output))
			}
			logSummary(fs, cfg.Input.Output)
		}
	}

	// View
	if !encoded {
		logger.Warn("Skipping view, no tagged image was written")
	} else if listing, err := exif.NewViewer(fs).View(cfg.Input.Output); err != nil {
		failures.report(err)
	} else {
		printListing(a.out, listing)
	}

	// Publish
	if cfg.Upload.Enabled {
		if !encoded {
			logger.Warn("Skipping upload, no tagged image was written")
		} else if err := publish(ctx, cfg, fs, objectMetadata(cfg, rec, lat, lon)); err != nil {
			failures.report(err)
		}
	}

	if len(failures) > 0 {
		if cfg.Strict {
			return fmt.Errorf("%d stage(s) failed, first: %w", len(failures), failures[0])
		}
		logger.Warn("Finished with %d failed stage(s)", len(failures))
	}
	return nil
}

// coordinates picks the explicit latitude and longitude when set, else the
// CSV values
func coordinates(cfg *config.Config, rec metadata.Record, policy metadata.NumericPolicy) (float64, float64, error) {
	var lat, lon float64
	var err error

	if cfg.Overrides.Latitude != nil {
		lat = *cfg.Overrides.Latitude
	} else if lat, err = rec.Float(metadata.KeyLatitude, policy); err != nil {
		return 0, 0, err
	}

	if cfg.Overrides.Longitude != nil {
		lon = *cfg.Overrides.Longitude
	} else if lon, err = rec.Float(metadata.KeyLongitude, policy); err != nil {
		return 0, 0, err
	}
	return lat, lon, nil
}

// logSummary decodes the written image independently and logs what it holds
func logSummary(fs *fshelper.Resolver, path string) {
	f, err := fs.Open(path)
	if err != nil {
		logger.Warn("Could not reopen %s: %v", path, err)
		return
	}
	defer f.Close()

	data, err := exif.Extract(f)
	if err != nil {
		logger.Warn("Could not verify EXIF of %s: %v", path, err)
		return
	}
	logger.Info("Wrote %s: %s", fs.Resolve(path), data)
}

// objectMetadata describes the uploaded object with the values written into
// its EXIF, so explicit overrides replace the CSV fields
func objectMetadata(cfg *config.Config, rec metadata.Record, lat, lon float64) map[string]string {
	if cfg.Overrides.Model != "" {
		rec = rec.With(metadata.KeyModel, cfg.Overrides.Model)
	}
	if cfg.Overrides.DateTime != "" {
		rec = rec.With(metadata.KeyTimestamp, cfg.Overrides.DateTime)
	}
	rec = rec.With(metadata.KeyLatitude, strconv.FormatFloat(lat, 'f', -1, 64))
	rec = rec.With(metadata.KeyLongitude, strconv.FormatFloat(lon, 'f', -1, 64))
	return rec.UserMetadata()
}

func publish(ctx context.Context, cfg *config.Config, fs *fshelper.Resolver, meta map[string]string) error {
	ctx, cancel := context.WithTimeout(ctx, cfg.Upload.Timeout)
	defer cancel()

	store, err := s3client.NewMinIO(ctx, s3client.Config{
		Endpoint:  cfg.S3.Endpoint,
		Region:    cfg.S3.Region,
		Bucket:    cfg.S3.Bucket,
		AccessKey: cfg.S3.AccessKey,
		SecretKey: cfg.S3.SecretKey,
		UseSSL:    cfg.S3.UseSSL,
		Prefix:    cfg.S3.Prefix,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize S3 client: %w", err)
	}

	status, err := uploader.New(store, fs, cfg.Upload).Upload(ctx, cfg.Input.Output, "", meta)
	if err != nil {
		return fmt.Errorf("upload failed: %w", err)
	}
	logger.Debug("Upload of %s: %s", cfg.Input.Output, status)
	return nil
}
