package vision

import (
	"testing"

	visionpb "cloud.google.com/go/vision/v2/apiv1/visionpb"
	"github.com/stretchr/testify/require"
	"google.golang.org/genproto/googleapis/rpc/status"

	"github.com/stemsi/secureeval-backend/internal/model"
)

const samplePaper = `Midterm Examination
Answer all questions.

1. Which planet is known as the red planet? [2 marks]
a) Venus
b) Mars
c) Jupiter
2) Explain the water cycle
in your own words.
3. Pick the noble gas
(A) Oxygen
(B) Neon
(C) Nitrogen
(D) Hydrogen
E. Carbon
4. What is 7 x 6?`

func TestParseQuestions(t *testing.T) {
	res := ParseQuestions(samplePaper)
	require.Len(t, res.Questions, 4)

	q0 := res.Questions[0]
	require.Equal(t, "0", q0.ID)
	require.Equal(t, model.QuestionTypeObjective, q0.Type)
	require.Equal(t, "Which planet is known as the red planet?", q0.Text)
	require.Equal(t, []string{"Venus", "Mars", "Jupiter"}, q0.Options)
	require.Equal(t, 2.0, q0.MaxMarks)
	require.Nil(t, q0.CorrectIndex)

	q1 := res.Questions[1]
	require.Equal(t, model.QuestionTypeFreeText, q1.Type)
	require.Equal(t, "Explain the water cycle in your own words.", q1.Text)
	require.Empty(t, q1.Options)

	q2 := res.Questions[2]
	require.Equal(t, []string{"Oxygen", "Neon", "Nitrogen", "Hydrogen E. Carbon"}, q2.Options)

	require.Equal(t, model.QuestionTypeFreeText, res.Questions[3].Type)
	require.Contains(t, res.Insights, "Extracted 4 questions: 2 objective, 2 free-text.")
}

func TestParseQuestionsIgnoresExtraOptions(t *testing.T) {
	res := ParseQuestions("1. Pick one\na) w\nb) x\nc) y\nd) z\n(a) again")
	require.Len(t, res.Questions[0].Options, maxOptions)
	require.Contains(t, res.Insights, "1 options beyond the fourth were ignored.")
}

func TestParseQuestionsWithoutNumbers(t *testing.T) {
	res := ParseQuestions("Just a heading\nand some prose")
	require.Empty(t, res.Questions)
	require.Equal(t, "No numbered questions were found in the document.", res.Insights)
}

func TestFaceCountFromResponse(t *testing.T) {
	faces, err := faceCountFromResponse(&visionpb.BatchAnnotateImagesResponse{
		Responses: []*visionpb.AnnotateImageResponse{{
			FaceAnnotations: []*visionpb.FaceAnnotation{{}, {}},
		}},
	})
	require.NoError(t, err)
	require.Equal(t, 2, faces)

	faces, err = faceCountFromResponse(&visionpb.BatchAnnotateImagesResponse{
		Responses: []*visionpb.AnnotateImageResponse{{}},
	})
	require.NoError(t, err)
	require.Zero(t, faces)

	_, err = faceCountFromResponse(&visionpb.BatchAnnotateImagesResponse{
		Responses: []*visionpb.AnnotateImageResponse{{Error: &status.Status{Message: "bad image"}}},
	})
	require.Error(t, err)

	_, err = faceCountFromResponse(nil)
	require.Error(t, err)
}

func TestTextFromResponses(t *testing.T) {
	text, err := textFromResponses([]*visionpb.AnnotateImageResponse{
		{FullTextAnnotation: &visionpb.TextAnnotation{Text: "1. First"}},
		nil,
		{},
		{FullTextAnnotation: &visionpb.TextAnnotation{Text: "2. Second"}},
	})
	require.NoError(t, err)
	require.Equal(t, "1. First\n2. Second", text)
}
