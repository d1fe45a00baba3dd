package cache

import "fmt"

const keyPrefix = "session-svc"

// AssessmentTreeKey is where the ordered part/block/question tree of an
// assessment is cached.
func AssessmentTreeKey(assessmentID uint) string {
	return fmt.Sprintf("%s:assessment:%d:tree", keyPrefix, assessmentID)
}

// AssessmentPattern matches every key cached for an assessment.
func AssessmentPattern(assessmentID uint) string {
	return fmt.Sprintf("%s:assessment:%d:*", keyPrefix, assessmentID)
}
