// Package inspector extracts scoring evidence from Android packages.
package inspector

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"image/png"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/shogo82148/androidbinary"
	"github.com/shogo82148/androidbinary/apk"

	"cloneguard-lab/internal/domain/models"
	"cloneguard-lab/pkg/logger"
)

// Inspector turns package bytes into evidence
type Inspector interface {
	Inspect(ctx context.Context, r io.ReaderAt, size int64) (*models.PackageEvidence, error)
}

// InspectionError means the package could not be opened at all
type InspectionError struct {
	Reason string
	Err    error
}

func (e *InspectionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("package inspection failed: %s: %v", e.Reason, e.Err)
	}
	return "package inspection failed: " + e.Reason
}

func (e *InspectionError) Unwrap() error { return e.Err }

const (
	classesSampleSize = 20
	maxManifestSize   = 8 << 20
)

// APKInspector reads APK archives. Only the manifest is mandatory; every other
// section degrades to absent on failure.
type APKInspector struct {
	logger *logger.Logger
	now    func() time.Time
}

// NewAPKInspector creates a new APK inspector
func NewAPKInspector(log *logger.Logger) *APKInspector {
	return &APKInspector{
		logger: log.WithComponent("apk-inspector"),
		now:    time.Now,
	}
}

// Inspect extracts identity, manifest components, certificates, icon, resource strings,
// file listing and dex statistics from the package in r
func (i *APKInspector) Inspect(ctx context.Context, r io.ReaderAt, size int64) (*models.PackageEvidence, error) {
	if r == nil || size <= 0 {
		return nil, &InspectionError{Reason: "no package source provided"}
	}

	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, &InspectionError{Reason: "not a zip archive", Err: err}
	}

	var pkg *apk.Apk
	if err := recoverDecode("manifest decoding", func() (err error) {
		pkg, err = apk.OpenZipReader(r, size)
		return err
	}); err != nil {
		return nil, &InspectionError{Reason: "manifest unreadable", Err: err}
	}
	defer pkg.Close()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ev := &models.PackageEvidence{AnalysisGeneratedAt: i.now().UTC()}
	if err := recoverDecode("manifest fields", func() error {
		ev.Package = pkg.PackageName()
		i.readManifest(pkg, ev)
		if label, err := pkg.Label(nil); err == nil {
			ev.Label = label
		}
		return nil
	}); err != nil {
		return nil, &InspectionError{Reason: "manifest unreadable", Err: err}
	}

	if err := i.readComponents(zr, ev); err != nil {
		i.logger.Debug().Err(err).Str("package", ev.Package).Msg("manifest components unavailable")
	}

	ev.Icon = i.readIcon(pkg)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if certs, err := extractCertificates(zr); err != nil {
		i.logger.Debug().Err(err).Str("package", ev.Package).Msg("no signing certificates extracted")
	} else {
		ev.Certificates = certs
	}

	if strs, err := extractResourceStrings(zr); err != nil {
		i.logger.Debug().Err(err).Str("package", ev.Package).Msg("resource strings unavailable")
	} else {
		ev.ResourceStrings = strs
	}

	i.readFiles(zr, ev)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if stats, err := extractDexStats(zr, classesSampleSize); err != nil {
		i.logger.Debug().Err(err).Str("package", ev.Package).Msg("dex statistics unavailable")
	} else {
		ev.Dex = stats
	}

	ev.Heuristics = models.PackageHeuristics{
		HasOverlay:    hasPermissionFragment(ev.Permissions, "SYSTEM_ALERT_WINDOW"),
		HasNativeLibs: len(ev.NativeLibs) > 0,
		AssetCount:    len(ev.Assets),
	}

	i.logger.Info().
		Str("package", ev.Package).
		Int("permissions", len(ev.Permissions)).
		Int("certificates", len(ev.Certificates)).
		Bool("icon", ev.Icon != nil).
		Msg("package inspected")

	return ev, nil
}

func (i *APKInspector) readManifest(pkg *apk.Apk, ev *models.PackageEvidence) {
	m := pkg.Manifest()

	if v, err := m.VersionName.String(); err == nil {
		ev.VersionName = v
	}
	if v, err := m.VersionCode.Int32(); err == nil {
		ev.VersionCode = v
	}
	if v, err := m.SDK.Min.Int32(); err == nil {
		ev.MinSDK = v
	}
	if v, err := m.SDK.Target.Int32(); err == nil {
		ev.TargetSDK = v
	}

	ev.Permissions = make([]string, 0, len(m.UsesPermissions))
	for _, p := range m.UsesPermissions {
		if name, err := p.Name.String(); err == nil && name != "" {
			ev.Permissions = append(ev.Permissions, name)
		}
	}

	for _, a := range m.App.Activities {
		if name, err := a.Name.String(); err == nil {
			ev.Activities = append(ev.Activities, name)
		}
	}
}

// manifestComponents picks the component declarations the library manifest type omits
type manifestComponents struct {
	Services  []manifestComponent `xml:"application>service"`
	Receivers []manifestComponent `xml:"application>receiver"`
}

type manifestComponent struct {
	Name string `xml:"http://schemas.android.com/apk/res/android name,attr"`
}

// readComponents decodes services and receivers straight from the binary manifest
func (i *APKInspector) readComponents(zr *zip.Reader, ev *models.PackageEvidence) error {
	f := findZipFile(zr, "AndroidManifest.xml")
	if f == nil {
		return fmt.Errorf("AndroidManifest.xml not found")
	}
	data, err := readZipFile(f, maxManifestSize)
	if err != nil {
		return err
	}

	var comps manifestComponents
	if err := recoverDecode("manifest components", func() error {
		xf, err := androidbinary.NewXMLFile(bytes.NewReader(data))
		if err != nil {
			return err
		}
		return xml.NewDecoder(xf.Reader()).Decode(&comps)
	}); err != nil {
		return fmt.Errorf("failed to decode manifest components: %w", err)
	}

	for _, c := range comps.Services {
		if c.Name != "" {
			ev.Services = append(ev.Services, c.Name)
		}
	}
	for _, c := range comps.Receivers {
		if c.Name != "" {
			ev.Receivers = append(ev.Receivers, c.Name)
		}
	}
	return nil
}

// recoverDecode runs fn and turns a panic from the decoding libraries into an error
func recoverDecode(stage string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s panicked: %v", stage, r)
		}
	}()
	return fn()
}

// readIcon re-encodes the resolved launcher icon as PNG; nil when it cannot be resolved
func (i *APKInspector) readIcon(pkg *apk.Apk) (icon []byte) {
	defer func() {
		if r := recover(); r != nil {
			i.logger.Warn().Interface("panic", r).Msg("icon decoding panicked")
			icon = nil
		}
	}()

	img, err := pkg.Icon(nil)
	if err != nil || img == nil {
		return nil
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil
	}
	return buf.Bytes()
}

func (i *APKInspector) readFiles(zr *zip.Reader, ev *models.PackageEvidence) {
	ev.Files = make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		ev.Files = append(ev.Files, f.Name)
		switch {
		case strings.HasSuffix(f.Name, ".so"):
			ev.NativeLibs = append(ev.NativeLibs, f.Name)
		case strings.HasPrefix(f.Name, "assets/"):
			ev.Assets = append(ev.Assets, f.Name)
		}
	}
	sort.Strings(ev.Files)
}

func hasPermissionFragment(perms []string, fragment string) bool {
	for _, p := range perms {
		if strings.Contains(p, fragment) {
			return true
		}
	}
	return false
}
